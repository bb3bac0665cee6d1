// Copyright (C) 2025 Kasdock Contributors (maintainers@kasdock.org)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stack

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// CONSTANTS AND ENUMS
// =============================================================================

// ValidationErrorType classifies blocking domain violations.
type ValidationErrorType string

const (
	ErrTypeCircularDependency  ValidationErrorType = "circular_dependency"
	ErrTypeConflict            ValidationErrorType = "conflict"
	ErrTypeMissingPrerequisite ValidationErrorType = "missing_prerequisite"
	ErrTypePortCollision       ValidationErrorType = "port_collision"
	ErrTypeAlreadyInstalled    ValidationErrorType = "already_installed"
	ErrTypeNotInstalled        ValidationErrorType = "not_installed"
	ErrTypeDependentProfiles   ValidationErrorType = "dependent_profiles"
	ErrTypePrerequisiteBreak   ValidationErrorType = "prerequisite_break"
	ErrTypeLastNodeRemoval     ValidationErrorType = "last_node_removal"
)

// ValidationWarningType classifies non-blocking findings.
type ValidationWarningType string

const (
	WarnTypeResourceShortfall ValidationWarningType = "resource_shortfall"
	WarnTypeSharedService     ValidationWarningType = "shared_service"
	WarnTypeMemoryHighWater   ValidationWarningType = "memory_high_water"
)

// RecommendationPriority is the four-tier priority the wizard UI renders.
// The enum values are part of the stable interface contract.
type RecommendationPriority string

const (
	PriorityCritical RecommendationPriority = "critical"
	PriorityHigh     RecommendationPriority = "high"
	PriorityMedium   RecommendationPriority = "medium"
	PriorityLow      RecommendationPriority = "low"
)

// priorityRank orders priorities for deterministic recommendation sorting.
var priorityRank = map[RecommendationPriority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// DefaultMemoryHighWaterGB is the aggregate minimum-memory threshold above
// which additions get a sizing warning.
const DefaultMemoryHighWaterGB = 32

// =============================================================================
// STRUCTS
// =============================================================================

// ValidationError is a blocking domain violation. Context fields are
// populated per type; unset fields are omitted from JSON.
type ValidationError struct {
	Type          ValidationErrorType `json:"type"`
	Message       string              `json:"message"`
	Profiles      []string            `json:"profiles,omitempty"`
	Services      []string            `json:"services,omitempty"`
	Port          int                 `json:"port,omitempty"`
	Cycle         []string            `json:"cycle,omitempty"`
	Prerequisites []string            `json:"prerequisites,omitempty"`
}

// ValidationWarning is a non-blocking finding requiring user acknowledgment.
type ValidationWarning struct {
	Type     ValidationWarningType  `json:"type"`
	Severity RecommendationPriority `json:"severity"`
	Message  string                 `json:"message"`
	Services []string               `json:"services,omitempty"`
}

// Recommendation is an actionable next step derived from which issue types
// fired. The mapping from issue type to text is fixed, never generated.
type Recommendation struct {
	Priority RecommendationPriority `json:"priority"`
	Category string                 `json:"category"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Actions  []string               `json:"actions,omitempty"`
}

// DependencyIssue records a relationship problem inside a fresh selection.
type DependencyIssue struct {
	Profile string   `json:"profile"`
	Kind    string   `json:"kind"`
	Details []string `json:"details,omitempty"`
}

// IntegrationOption is one concrete way to connect a newly added profile to
// an installed one. Config carries the exact environment payload; it is
// never applied silently.
type IntegrationOption struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Description string            `json:"description"`
	Recommended bool              `json:"recommended"`
	Config      map[string]string `json:"config"`
}

// IntegrationSuggestion offers connection options for a profile pair.
type IntegrationSuggestion struct {
	AddedProfile   string              `json:"added_profile"`
	PresentProfile string              `json:"present_profile"`
	Title          string              `json:"title"`
	Message        string              `json:"message"`
	Options        []IntegrationOption `json:"options"`
}

// ValidationResult is the common validation outcome shape. Errors block the
// operation; warnings and recommendations never do.
type ValidationResult struct {
	Valid            bool                `json:"valid"`
	Errors           []ValidationError   `json:"errors"`
	Warnings         []ValidationWarning `json:"warnings"`
	Recommendations  []Recommendation    `json:"recommendations"`
	DependencyIssues []DependencyIssue   `json:"dependency_issues,omitempty"`
}

// AdditionResult is the outcome of validating a profile addition.
type AdditionResult struct {
	ValidationResult
	CanAdd      bool                    `json:"can_add"`
	Suggestions []IntegrationSuggestion `json:"suggestions,omitempty"`
}

// SharedServiceImpact identifies a service that survives a profile removal
// because another installed profile still references it. The installer must
// not stop these containers.
type SharedServiceImpact struct {
	Service        string   `json:"service"`
	RemovedProfile string   `json:"removed_profile"`
	RetainedBy     []string `json:"retained_by"`
}

// RemovalResult is the outcome of validating a profile removal.
type RemovalResult struct {
	ValidationResult
	CanRemove         bool                  `json:"can_remove"`
	DependentProfiles []string              `json:"dependent_profiles,omitempty"`
	SharedServices    []SharedServiceImpact `json:"shared_services,omitempty"`
}

// ValidatorConfig tunes validator thresholds. Zero values take defaults.
type ValidatorConfig struct {
	// MemoryHighWaterGB triggers the sizing warning when the aggregate
	// minimum memory of a post-addition set exceeds it.
	MemoryHighWaterGB int
}

// =============================================================================
// INTERFACES
// =============================================================================

// DependencyValidator validates profile selections and installation changes.
//
// # Description
//
// The validator is the orchestration layer above the resolver and aggregator.
// Expected domain violations (conflicts, missing prerequisites, port
// collisions, orphaned dependents) are returned inside the result, never as
// Go errors. Go errors are reserved for programmer and environment failures:
// unknown profile ids and an unreadable catalog. Callers must treat those as
// a hard stop; no partial result accompanies them.
//
// All operations are pure with respect to the supplied installation snapshot;
// nothing is persisted here.
//
// # Examples
//
//	result, err := validator.ValidateAddition("mining", []string{"core"})
//	if err != nil {
//	    return err // unknown id: fatal configuration error
//	}
//	if !result.CanAdd {
//	    for _, e := range result.Errors {
//	        fmt.Println(e.Message)
//	    }
//	}
//
// # Thread Safety
//
// Implementations are safe for concurrent use; each call operates on its own
// state snapshot.
type DependencyValidator interface {
	// ValidateSelection validates a fresh, not-yet-installed profile set:
	// cycles, conflicts, port collisions, and in-selection prerequisite
	// coverage.
	ValidateSelection(profiles []string) (*ValidationResult, error)

	// ValidateAddition validates adding profileID to an installed set.
	ValidateAddition(profileID string, current []string) (*AdditionResult, error)

	// ValidateRemoval validates removing profileID from an installed set.
	ValidateRemoval(profileID string, current []string) (*RemovalResult, error)

	// ValidateResources checks a profile set's aggregate requirement
	// against a host snapshot. Shortfalls are warnings, never errors.
	ValidateResources(profiles []string, system SystemResources) (*ValidationResult, error)
}

// =============================================================================
// DEFAULT IMPLEMENTATION
// =============================================================================

// DefaultDependencyValidator validates against an explicit catalog with
// injected resolver and aggregator collaborators.
type DefaultDependencyValidator struct {
	catalog    *Catalog
	resolver   DependencyResolver
	aggregator ResourceAggregator
	config     ValidatorConfig
}

// NewDefaultDependencyValidator creates a validator.
//
// # Inputs
//
//   - catalog: immutable profile catalog.
//   - resolver: dependency resolver bound to the same catalog.
//   - aggregator: resource aggregator bound to the same catalog.
//   - config: thresholds; zero values take defaults.
//
// # Outputs
//
//   - *DefaultDependencyValidator: ready-to-use validator.
//   - error: ErrNilDependency if any collaborator is nil.
func NewDefaultDependencyValidator(catalog *Catalog, resolver DependencyResolver,
	aggregator ResourceAggregator, config ValidatorConfig) (*DefaultDependencyValidator, error) {

	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog", ErrNilDependency)
	}
	if resolver == nil {
		return nil, fmt.Errorf("%w: resolver", ErrNilDependency)
	}
	if aggregator == nil {
		return nil, fmt.Errorf("%w: aggregator", ErrNilDependency)
	}
	if config.MemoryHighWaterGB == 0 {
		config.MemoryHighWaterGB = DefaultMemoryHighWaterGB
	}

	return &DefaultDependencyValidator{
		catalog:    catalog,
		resolver:   resolver,
		aggregator: aggregator,
		config:     config,
	}, nil
}

// ValidateSelection implements DependencyValidator.
func (v *DefaultDependencyValidator) ValidateSelection(profiles []string) (*ValidationResult, error) {
	if err := v.requireKnown(profiles); err != nil {
		return nil, err
	}

	result := newValidationResult()

	resolved, err := v.resolver.Resolve(profiles)
	if err != nil {
		var cycleErr *CircularDependencyError
		if errors.As(err, &cycleErr) {
			result.Errors = append(result.Errors, ValidationError{
				Type:    ErrTypeCircularDependency,
				Message: cycleErr.Error(),
				Cycle:   cycleErr.Cycle,
			})
			v.finalize(result)
			return result, nil
		}
		return nil, err
	}

	for _, pair := range resolved.Conflicts {
		result.Errors = append(result.Errors, conflictError(pair.ProfileA, pair.ProfileB))
	}

	result.Errors = append(result.Errors, v.portCollisions(resolved.Profiles)...)

	// A fresh selection installs onto an empty host, so disjunctive
	// prerequisites must be covered inside the selection itself.
	for _, id := range resolved.Profiles {
		profile, _ := v.catalog.Get(id)
		if len(profile.Prerequisites) == 0 {
			continue
		}
		if anyPresent(profile.Prerequisites, resolved.Profiles) {
			continue
		}
		result.DependencyIssues = append(result.DependencyIssues, DependencyIssue{
			Profile: id,
			Kind:    "unsatisfied_prerequisite",
			Details: profile.Prerequisites,
		})
		result.Errors = append(result.Errors, missingPrerequisiteError(id, profile.Prerequisites))
	}

	v.finalize(result)
	return result, nil
}

// ValidateAddition implements DependencyValidator.
func (v *DefaultDependencyValidator) ValidateAddition(profileID string, current []string) (*AdditionResult, error) {
	profile, err := v.catalog.Get(profileID)
	if err != nil {
		return nil, err
	}
	if err := v.requireKnown(current); err != nil {
		return nil, err
	}

	result := &AdditionResult{ValidationResult: *newValidationResult()}

	if containsString(current, profileID) {
		result.Errors = append(result.Errors, ValidationError{
			Type:     ErrTypeAlreadyInstalled,
			Message:  fmt.Sprintf("profile %q is already installed", profileID),
			Profiles: []string{profileID},
		})
	}

	// Conflicts are symmetric regardless of which side declared them.
	reportedConflicts := map[string]bool{}
	for _, installed := range current {
		other, _ := v.catalog.Get(installed)
		if profile.DeclaresConflictWith(installed) || other.DeclaresConflictWith(profileID) {
			result.Errors = append(result.Errors, conflictError(profileID, installed))
			reportedConflicts[conflictPairKey(profileID, installed)] = true
		}
	}

	// Disjunctive prerequisite: any single installed member satisfies.
	if len(profile.Prerequisites) > 0 && !anyPresent(profile.Prerequisites, current) {
		result.Errors = append(result.Errors, missingPrerequisiteError(profileID, profile.Prerequisites))
	}

	newSet := append(append([]string(nil), current...), profileID)
	resolved, err := v.resolver.Resolve(newSet)
	if err != nil {
		var cycleErr *CircularDependencyError
		if errors.As(err, &cycleErr) {
			result.Errors = append(result.Errors, ValidationError{
				Type:    ErrTypeCircularDependency,
				Message: cycleErr.Error(),
				Cycle:   cycleErr.Cycle,
			})
		} else {
			return nil, err
		}
	}

	if resolved != nil {
		// Dependencies pulled in by the addition can conflict with profiles
		// the direct pair check never sees.
		for _, pair := range resolved.Conflicts {
			if reportedConflicts[conflictPairKey(pair.ProfileA, pair.ProfileB)] {
				continue
			}
			reportedConflicts[conflictPairKey(pair.ProfileA, pair.ProfileB)] = true
			result.Errors = append(result.Errors, conflictError(pair.ProfileA, pair.ProfileB))
		}

		result.Errors = append(result.Errors, v.portCollisions(resolved.Profiles)...)

		req, err := v.aggregator.Aggregate(resolved.Profiles)
		if err != nil {
			return nil, err
		}
		if req.MinMemoryGB > v.config.MemoryHighWaterGB {
			result.Warnings = append(result.Warnings, ValidationWarning{
				Type:     WarnTypeMemoryHighWater,
				Severity: PriorityMedium,
				Message: fmt.Sprintf("aggregate minimum memory %d GB exceeds the %d GB sizing threshold",
					req.MinMemoryGB, v.config.MemoryHighWaterGB),
			})
		}
	}

	result.Suggestions = v.integrationSuggestions(profileID, current)

	v.finalize(&result.ValidationResult)
	result.CanAdd = len(result.Errors) == 0
	return result, nil
}

// ValidateRemoval implements DependencyValidator.
func (v *DefaultDependencyValidator) ValidateRemoval(profileID string, current []string) (*RemovalResult, error) {
	profile, err := v.catalog.Get(profileID)
	if err != nil {
		return nil, err
	}
	if err := v.requireKnown(current); err != nil {
		return nil, err
	}

	result := &RemovalResult{ValidationResult: *newValidationResult()}

	if !containsString(current, profileID) {
		result.Errors = append(result.Errors, ValidationError{
			Type:     ErrTypeNotInstalled,
			Message:  fmt.Sprintf("profile %q is not installed", profileID),
			Profiles: []string{profileID},
		})
		v.finalize(&result.ValidationResult)
		return result, nil
	}

	survivors := removeString(current, profileID)

	// Hard dependents make removal an error: they would be orphaned.
	for _, id := range survivors {
		survivor, _ := v.catalog.Get(id)
		if survivor.DependsOn(profileID) {
			result.DependentProfiles = append(result.DependentProfiles, id)
		}
	}
	if len(result.DependentProfiles) > 0 {
		result.Errors = append(result.Errors, ValidationError{
			Type: ErrTypeDependentProfiles,
			Message: fmt.Sprintf("profiles depending on %q remain installed: %s",
				profileID, strings.Join(result.DependentProfiles, ", ")),
			Profiles: result.DependentProfiles,
		})
	}

	// A survivor loses its prerequisite when the removed profile was the
	// only installed member of its disjunctive set.
	for _, id := range survivors {
		survivor, _ := v.catalog.Get(id)
		if !containsString(survivor.Prerequisites, profileID) {
			continue
		}
		if anyPresent(survivor.Prerequisites, survivors) {
			continue
		}
		result.Errors = append(result.Errors, ValidationError{
			Type: ErrTypePrerequisiteBreak,
			Message: fmt.Sprintf("removing %q leaves %q without any of its prerequisites (%s)",
				profileID, id, strings.Join(survivor.Prerequisites, ", ")),
			Profiles:      []string{id},
			Prerequisites: survivor.Prerequisites,
		})
	}

	// Losing the last node-providing profile breaks every service that
	// assumes local node availability. Critical, not advisory.
	if profile.Category.IsNodeProviding() && !v.anyNodeProvider(survivors) {
		result.Errors = append(result.Errors, ValidationError{
			Type: ErrTypeLastNodeRemoval,
			Message: fmt.Sprintf("%q is the last node-providing profile; removal leaves no Kaspa node",
				profileID),
			Profiles: []string{profileID},
		})
	}

	result.SharedServices = v.sharedServices(profile, survivors)
	for _, impact := range result.SharedServices {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Type:     WarnTypeSharedService,
			Severity: PriorityMedium,
			Message: fmt.Sprintf("service %q stays running: still used by %s",
				impact.Service, strings.Join(impact.RetainedBy, ", ")),
			Services: []string{impact.Service},
		})
	}

	v.finalize(&result.ValidationResult)
	result.CanRemove = len(result.Errors) == 0
	return result, nil
}

// ValidateResources implements DependencyValidator.
func (v *DefaultDependencyValidator) ValidateResources(profiles []string, system SystemResources) (*ValidationResult, error) {
	if err := v.requireKnown(profiles); err != nil {
		return nil, err
	}

	result := newValidationResult()

	req, err := v.aggregator.Aggregate(profiles)
	if err != nil {
		return nil, err
	}

	report := v.aggregator.CheckSufficiency(req, system)
	for _, shortfall := range report.Shortfalls {
		severity := PriorityLow
		if shortfall.Severity == ShortfallHard {
			severity = PriorityHigh
		}
		result.Warnings = append(result.Warnings, ValidationWarning{
			Type:     WarnTypeResourceShortfall,
			Severity: severity,
			Message:  shortfall.Message,
		})
	}

	v.finalize(result)
	return result, nil
}

// =============================================================================
// PRIVATE HELPER METHODS
// =============================================================================

// requireKnown rejects unknown profile ids as programmer errors.
func (v *DefaultDependencyValidator) requireKnown(ids []string) error {
	for _, id := range ids {
		if !v.catalog.Has(id) {
			return fmt.Errorf("%w: %q", ErrProfileNotFound, id)
		}
	}
	return nil
}

// portCollisions finds ports claimed by two differently named services
// across the profile set. A same-named service appearing in several profiles
// is one shared container, never a collision.
func (v *DefaultDependencyValidator) portCollisions(profiles []string) []ValidationError {
	type claim struct {
		service string
		profile string
	}
	claims := make(map[int][]claim)

	for _, id := range profiles {
		profile, _ := v.catalog.Get(id)
		for _, svc := range profile.Services {
			for _, port := range svc.Ports {
				claims[port] = append(claims[port], claim{service: svc.Name, profile: id})
			}
		}
	}

	ports := make([]int, 0, len(claims))
	for port := range claims {
		ports = append(ports, port)
	}
	sort.Ints(ports)

	var collisions []ValidationError
	for _, port := range ports {
		holders := claims[port]
		for i := 0; i < len(holders); i++ {
			for j := i + 1; j < len(holders); j++ {
				if holders[i].service == holders[j].service {
					continue
				}
				collisions = append(collisions, ValidationError{
					Type: ErrTypePortCollision,
					Message: fmt.Sprintf("port %d claimed by both %q (%s) and %q (%s)",
						port, holders[i].service, holders[i].profile,
						holders[j].service, holders[j].profile),
					Port:     port,
					Services: []string{holders[i].service, holders[j].service},
					Profiles: []string{holders[i].profile, holders[j].profile},
				})
			}
		}
	}
	return collisions
}

// anyNodeProvider reports whether any profile in ids runs a Kaspa node.
func (v *DefaultDependencyValidator) anyNodeProvider(ids []string) bool {
	for _, id := range ids {
		profile, err := v.catalog.Get(id)
		if err == nil && profile.Category.IsNodeProviding() {
			return true
		}
	}
	return false
}

// sharedServices lists services of the removed profile still referenced by
// survivors, ordered by the removed profile's service declaration order.
func (v *DefaultDependencyValidator) sharedServices(removed Profile, survivors []string) []SharedServiceImpact {
	var impacts []SharedServiceImpact
	for _, svc := range removed.Services {
		var retainedBy []string
		for _, id := range survivors {
			survivor, _ := v.catalog.Get(id)
			if containsString(survivor.ServiceNames(), svc.Name) {
				retainedBy = append(retainedBy, id)
			}
		}
		if len(retainedBy) > 0 {
			impacts = append(impacts, SharedServiceImpact{
				Service:        svc.Name,
				RemovedProfile: removed.ID,
				RetainedBy:     retainedBy,
			})
		}
	}
	return impacts
}

// finalize computes Valid and derives recommendations. Called exactly once
// per result.
func (v *DefaultDependencyValidator) finalize(result *ValidationResult) {
	result.Valid = len(result.Errors) == 0
	result.Recommendations = buildRecommendations(result.Errors, result.Warnings)
}

// =============================================================================
// RECOMMENDATION MAPPING
// =============================================================================

// recommendationRule maps one issue type to fixed recommendation text.
// Table order is the tie-break within equal priorities, keeping output
// deterministic for identical issue sets.
type recommendationRule struct {
	errType  ValidationErrorType
	warnType ValidationWarningType
	priority RecommendationPriority
	category string
	title    string
	message  string
	actions  []string
}

var recommendationRules = []recommendationRule{
	{
		errType:  ErrTypeLastNodeRemoval,
		priority: PriorityCritical,
		category: "node-availability",
		title:    "Keep a Kaspa node running",
		message:  "Install another node profile (core or archive-node) before removing this one, or remove the dependent services first.",
		actions:  []string{"install core", "install archive-node"},
	},
	{
		errType:  ErrTypeCircularDependency,
		priority: PriorityCritical,
		category: "catalog",
		title:    "Fix the dependency cycle",
		message:  "The profile catalog declares a dependency loop; resolution cannot proceed until the catalog is corrected.",
	},
	{
		errType:  ErrTypeConflict,
		priority: PriorityHigh,
		category: "compatibility",
		title:    "Remove the conflicting profile",
		message:  "Two selected profiles cannot coexist. Remove one side of each conflict before continuing.",
	},
	{
		errType:  ErrTypeMissingPrerequisite,
		priority: PriorityHigh,
		category: "prerequisites",
		title:    "Install a prerequisite first",
		message:  "At least one profile from the prerequisite set must be installed before this profile.",
	},
	{
		errType:  ErrTypePortCollision,
		priority: PriorityHigh,
		category: "networking",
		title:    "Resolve the port collision",
		message:  "Two services claim the same host port. Change one service's port mapping or drop one profile.",
	},
	{
		errType:  ErrTypeDependentProfiles,
		priority: PriorityHigh,
		category: "dependencies",
		title:    "Remove dependent profiles first",
		message:  "Other installed profiles depend on this one. Remove them first or keep this profile installed.",
	},
	{
		errType:  ErrTypePrerequisiteBreak,
		priority: PriorityHigh,
		category: "prerequisites",
		title:    "Preserve a prerequisite",
		message:  "A surviving profile would lose its only installed prerequisite. Install an alternative before removing.",
	},
	{
		warnType: WarnTypeResourceShortfall,
		priority: PriorityHigh,
		category: "resources",
		title:    "Review host capacity",
		message:  "The host falls short of the aggregate resource requirement. Free capacity or trim the selection.",
	},
	{
		warnType: WarnTypeMemoryHighWater,
		priority: PriorityMedium,
		category: "resources",
		title:    "Plan for memory headroom",
		message:  "The selection's minimum memory passes the sizing threshold. Confirm the host is provisioned accordingly.",
	},
	{
		warnType: WarnTypeSharedService,
		priority: PriorityMedium,
		category: "services",
		title:    "Shared services stay up",
		message:  "Services still referenced by other profiles will not be stopped during removal.",
	},
	{
		errType:  ErrTypeAlreadyInstalled,
		priority: PriorityLow,
		category: "selection",
		title:    "Profile already installed",
		message:  "Nothing to do; the profile is part of the current installation.",
	},
	{
		errType:  ErrTypeNotInstalled,
		priority: PriorityLow,
		category: "selection",
		title:    "Profile not installed",
		message:  "Nothing to remove; the profile is not part of the current installation.",
	},
}

// buildRecommendations maps fired issue types onto the fixed rule table.
// One recommendation per distinct issue type, ordered by priority then table
// position.
func buildRecommendations(errs []ValidationError, warnings []ValidationWarning) []Recommendation {
	firedErr := make(map[ValidationErrorType]bool)
	for _, e := range errs {
		firedErr[e.Type] = true
	}
	firedWarn := make(map[ValidationWarningType]bool)
	for _, w := range warnings {
		firedWarn[w.Type] = true
	}

	recs := make([]Recommendation, 0)
	for _, rule := range recommendationRules {
		fired := (rule.errType != "" && firedErr[rule.errType]) ||
			(rule.warnType != "" && firedWarn[rule.warnType])
		if !fired {
			continue
		}
		recs = append(recs, Recommendation{
			Priority: rule.priority,
			Category: rule.category,
			Title:    rule.title,
			Message:  rule.message,
			Actions:  rule.actions,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return priorityRank[recs[i].Priority] < priorityRank[recs[j].Priority]
	})
	return recs
}

// =============================================================================
// INTEGRATION SUGGESTIONS
// =============================================================================

// integrationRule builds a suggestion when addedProfile joins a set already
// containing presentProfile. The table is fixed; options carry concrete
// environment payloads.
type integrationRule struct {
	addedProfile   string
	presentProfile string
	build          func(added, present string) IntegrationSuggestion
}

var integrationRules = []integrationRule{
	{
		addedProfile:   "indexer-services",
		presentProfile: "core",
		build:          buildIndexerNodeSuggestion,
	},
	{
		addedProfile:   "indexer-services",
		presentProfile: "archive-node",
		build:          buildIndexerNodeSuggestion,
	},
	{
		addedProfile:   "kaspa-user-applications",
		presentProfile: "indexer-services",
		build:          buildApplicationsIndexerSuggestion,
	},
	{
		addedProfile:   "mining",
		presentProfile: "core",
		build:          buildMiningNodeSuggestion,
	},
	{
		addedProfile:   "mining",
		presentProfile: "archive-node",
		build:          buildMiningNodeSuggestion,
	},
}

// integrationSuggestions evaluates the pair table for one addition.
func (v *DefaultDependencyValidator) integrationSuggestions(profileID string, current []string) []IntegrationSuggestion {
	var suggestions []IntegrationSuggestion
	for _, rule := range integrationRules {
		if rule.addedProfile != profileID {
			continue
		}
		if !containsString(current, rule.presentProfile) {
			continue
		}
		suggestions = append(suggestions, rule.build(profileID, rule.presentProfile))
	}
	return suggestions
}

func buildIndexerNodeSuggestion(added, present string) IntegrationSuggestion {
	nodeService := "kaspad"
	if present == "archive-node" {
		nodeService = "kaspad-archive"
	}
	return IntegrationSuggestion{
		AddedProfile:   added,
		PresentProfile: present,
		Title:          "Connect indexers to your local node",
		Message:        "A local Kaspa node is installed. Indexers can fill from it directly instead of public endpoints.",
		Options: []IntegrationOption{
			{
				ID:          "local-node",
				Label:       "Point indexers at the local node",
				Description: "Lowest latency, no rate limits, full data ownership.",
				Recommended: true,
				Config: map[string]string{
					"INDEXER_DATA_SOURCE": "local",
					"KASPAD_RPC_URL":      nodeService + ":16110",
				},
			},
			{
				ID:          "public-endpoints",
				Label:       "Keep public endpoints",
				Description: "No extra load on the local node; subject to public rate limits.",
				Config: map[string]string{
					"INDEXER_DATA_SOURCE": "public",
					"KASPAD_RPC_URL":      "api.kaspa.org:16110",
				},
			},
			{
				ID:          "mixed",
				Label:       "Mixed mode",
				Description: "Fill from the local node, fall back to public endpoints when it is unavailable.",
				Config: map[string]string{
					"INDEXER_DATA_SOURCE":     "mixed",
					"KASPAD_RPC_URL":          nodeService + ":16110",
					"KASPAD_FALLBACK_RPC_URL": "api.kaspa.org:16110",
				},
			},
		},
	}
}

func buildApplicationsIndexerSuggestion(added, present string) IntegrationSuggestion {
	return IntegrationSuggestion{
		AddedProfile:   added,
		PresentProfile: present,
		Title:          "Use local indexers for applications",
		Message:        "Indexer services are installed. The explorer and graph inspector can query them directly.",
		Options: []IntegrationOption{
			{
				ID:          "local-indexers",
				Label:       "Use local indexers",
				Description: "Applications query the local REST server; freshest data, no rate limits.",
				Recommended: true,
				Config: map[string]string{
					"KASPA_REST_API_URL":     "http://kaspa-rest-server:8000",
					"KASPA_EXPLORER_API_URL": "http://kaspa-rest-server:8000",
				},
			},
			{
				ID:          "public-api",
				Label:       "Use the public API",
				Description: "Applications query api.kaspa.org; no local indexer load.",
				Config: map[string]string{
					"KASPA_REST_API_URL":     "https://api.kaspa.org",
					"KASPA_EXPLORER_API_URL": "https://api.kaspa.org",
				},
			},
		},
	}
}

func buildMiningNodeSuggestion(added, present string) IntegrationSuggestion {
	nodeService := "kaspad"
	if present == "archive-node" {
		nodeService = "kaspad-archive"
	}
	return IntegrationSuggestion{
		AddedProfile:   added,
		PresentProfile: present,
		Title:          "Bridge miners through the local node",
		Message:        "The stratum bridge should submit blocks through the installed node's RPC endpoint.",
		Options: []IntegrationOption{
			{
				ID:          "local-node-rpc",
				Label:       "Use the local node RPC",
				Description: "Direct block submission with minimal latency.",
				Recommended: true,
				Config: map[string]string{
					"STRATUM_NODE_RPC_URL": nodeService + ":16110",
				},
			},
		},
	}
}

// =============================================================================
// MOCK IMPLEMENTATION
// =============================================================================

// MockDependencyValidator implements DependencyValidator for testing.
type MockDependencyValidator struct {
	ValidateSelectionFunc func(profiles []string) (*ValidationResult, error)
	ValidateAdditionFunc  func(profileID string, current []string) (*AdditionResult, error)
	ValidateRemovalFunc   func(profileID string, current []string) (*RemovalResult, error)
	ValidateResourcesFunc func(profiles []string, system SystemResources) (*ValidationResult, error)

	SelectionCalls [][]string
	AdditionCalls  []string
	RemovalCalls   []string
}

// ValidateSelection implements DependencyValidator.
func (m *MockDependencyValidator) ValidateSelection(profiles []string) (*ValidationResult, error) {
	m.SelectionCalls = append(m.SelectionCalls, append([]string(nil), profiles...))
	if m.ValidateSelectionFunc != nil {
		return m.ValidateSelectionFunc(profiles)
	}
	return &ValidationResult{Valid: true, Errors: []ValidationError{}, Warnings: []ValidationWarning{}, Recommendations: []Recommendation{}}, nil
}

// ValidateAddition implements DependencyValidator.
func (m *MockDependencyValidator) ValidateAddition(profileID string, current []string) (*AdditionResult, error) {
	m.AdditionCalls = append(m.AdditionCalls, profileID)
	if m.ValidateAdditionFunc != nil {
		return m.ValidateAdditionFunc(profileID, current)
	}
	return &AdditionResult{
		ValidationResult: ValidationResult{Valid: true, Errors: []ValidationError{}, Warnings: []ValidationWarning{}, Recommendations: []Recommendation{}},
		CanAdd:           true,
	}, nil
}

// ValidateRemoval implements DependencyValidator.
func (m *MockDependencyValidator) ValidateRemoval(profileID string, current []string) (*RemovalResult, error) {
	m.RemovalCalls = append(m.RemovalCalls, profileID)
	if m.ValidateRemovalFunc != nil {
		return m.ValidateRemovalFunc(profileID, current)
	}
	return &RemovalResult{
		ValidationResult: ValidationResult{Valid: true, Errors: []ValidationError{}, Warnings: []ValidationWarning{}, Recommendations: []Recommendation{}},
		CanRemove:        true,
	}, nil
}

// ValidateResources implements DependencyValidator.
func (m *MockDependencyValidator) ValidateResources(profiles []string, system SystemResources) (*ValidationResult, error) {
	if m.ValidateResourcesFunc != nil {
		return m.ValidateResourcesFunc(profiles, system)
	}
	return &ValidationResult{Valid: true, Errors: []ValidationError{}, Warnings: []ValidationWarning{}, Recommendations: []Recommendation{}}, nil
}

// =============================================================================
// PRIVATE HELPER FUNCTIONS
// =============================================================================

// newValidationResult creates a result with non-nil slices so JSON encodes
// empty arrays, matching the wizard contract.
func newValidationResult() *ValidationResult {
	return &ValidationResult{
		Errors:          []ValidationError{},
		Warnings:        []ValidationWarning{},
		Recommendations: []Recommendation{},
	}
}

// conflictPairKey is order-insensitive so a pair is reported once no
// matter which side surfaced it.
func conflictPairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "\x00" + b
}

func conflictError(a, b string) ValidationError {
	return ValidationError{
		Type:     ErrTypeConflict,
		Message:  fmt.Sprintf("profiles %q and %q cannot coexist", a, b),
		Profiles: []string{a, b},
	}
}

func missingPrerequisiteError(id string, prerequisites []string) ValidationError {
	return ValidationError{
		Type: ErrTypeMissingPrerequisite,
		Message: fmt.Sprintf("profile %q requires at least one of: %s",
			id, strings.Join(prerequisites, ", ")),
		Profiles:      []string{id},
		Prerequisites: prerequisites,
	}
}

// anyPresent reports whether any candidate appears in the present set.
func anyPresent(candidates, present []string) bool {
	for _, c := range candidates {
		if containsString(present, c) {
			return true
		}
	}
	return false
}

// removeString returns list without every occurrence of s.
func removeString(list []string, s string) []string {
	out := make([]string, 0, len(list))
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

// =============================================================================
// COMPILE-TIME CHECKS
// =============================================================================

var (
	_ DependencyValidator = (*DefaultDependencyValidator)(nil)
	_ DependencyValidator = (*MockDependencyValidator)(nil)
)
