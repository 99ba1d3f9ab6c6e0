package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/automation"
)

const (
	automationUserDailyCap  = 50
	automationGroupDailyCap = 20
	automationDailyCap      = 10
	automationCooldown      = 60 * time.Second
	automationCostCapDaily  = 100
)

var actionDailyLimit = map[automation.ActionType]int64{
	automation.ActionSendNotification:    10,
	automation.ActionSendEmail:           5,
	automation.ActionSendPaymentReminder: 3,
	automation.ActionCreateGame:          2,
	automation.ActionAutoRSVP:            10,
	automation.ActionGenerateSummary:     5,
}

var actionCost = map[automation.ActionType]int{
	automation.ActionSendNotification:    1,
	automation.ActionSendEmail:           2,
	automation.ActionSendPaymentReminder: 2,
	automation.ActionAutoRSVP:            1,
	automation.ActionCreateGame:          3,
	automation.ActionGenerateSummary:     5,
}

// Role is a user's membership role within a group, used by the action
// permission matrix.
type Role string

const (
	RoleMember   Role = "member"
	RoleAdmin    Role = "admin"
	RoleCreditor Role = "creditor"
)

// Target is who an action's effect is addressed to.
type Target string

const (
	TargetSelf  Target = "self"
	TargetGroup Target = "group"
	TargetHost  Target = "host"
	TargetAny   Target = "any"
)

// permissionMatrix maps (action_type, target) to the roles allowed to
// trigger it; broadcast (group) targets require admin, except
// generate_summary, which members may also trigger.
var permissionMatrix = map[automation.ActionType]map[Target][]Role{
	automation.ActionSendNotification:    {TargetSelf: {RoleMember, RoleAdmin}, TargetGroup: {RoleAdmin}},
	automation.ActionSendEmail:           {TargetSelf: {RoleMember, RoleAdmin}, TargetGroup: {RoleAdmin}},
	automation.ActionSendPaymentReminder: {TargetSelf: {RoleCreditor, RoleAdmin}, TargetHost: {RoleAdmin}},
	automation.ActionAutoRSVP:            {TargetSelf: {RoleMember, RoleAdmin}},
	automation.ActionCreateGame:          {TargetGroup: {RoleAdmin}},
	automation.ActionGenerateSummary:     {TargetSelf: {RoleMember, RoleAdmin}, TargetGroup: {RoleMember, RoleAdmin}},
}

func hasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Membership answers group-membership and role questions the automation
// policy needs; the application wires this to the groups store.
type Membership interface {
	IsMember(ctx context.Context, groupID, userID string) (bool, error)
	RoleOf(ctx context.Context, groupID, userID string) (Role, error)
}

// AutomationPolicy implements the 9 ordered pre-action checks from the
// automation policy design, short-circuiting on the first failure.
type AutomationPolicy struct {
	counter    Counter
	membership Membership
	now        func() time.Time
}

// NewAutomationPolicy builds an AutomationPolicy over the given counter and
// membership lookup.
func NewAutomationPolicy(counter Counter, membership Membership) *AutomationPolicy {
	return &AutomationPolicy{counter: counter, membership: membership, now: time.Now}
}

func (p *AutomationPolicy) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// RunRequest describes a candidate automation invocation to be checked.
type RunRequest struct {
	Automation       *automation.Automation
	LastRunAt        *time.Time
	LocalHour        int
	UserTimezone     string
	Role             Role
	Target           Target
	QueueNonExempt   bool
}

func dayBucket(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// Check runs the ordered checks and returns a Decision.
func (p *AutomationPolicy) Check(ctx context.Context, req RunRequest) (Decision, error) {
	var passed []string
	now := p.clock()
	bucket := dayBucket(now)
	a := req.Automation

	userKey := fmt.Sprintf("automation_daily:user:%s:%s", a.UserID, bucket)
	userCount, err := p.counter.Get(ctx, userKey)
	if err != nil {
		return Decision{}, err
	}
	if userCount >= automationUserDailyCap {
		return deny(passed, "user_daily_cap", "per-user daily automation run cap exceeded"), nil
	}
	passed = append(passed, "user_daily_cap")

	if a.GroupID != "" {
		groupKey := fmt.Sprintf("automation_daily:group:%s:%s", a.GroupID, bucket)
		groupCount, err := p.counter.Get(ctx, groupKey)
		if err != nil {
			return Decision{}, err
		}
		if groupCount >= automationGroupDailyCap {
			return deny(passed, "group_daily_cap", "per-group daily automation run cap exceeded"), nil
		}
	}
	passed = append(passed, "group_daily_cap")

	autoKey := fmt.Sprintf("automation_daily:automation:%s:%s", a.AutomationID, bucket)
	autoCount, err := p.counter.Get(ctx, autoKey)
	if err != nil {
		return Decision{}, err
	}
	if autoCount >= automationDailyCap {
		return deny(passed, "automation_daily_cap", "per-automation daily run cap exceeded"), nil
	}
	passed = append(passed, "automation_daily_cap")

	if req.LastRunAt != nil && now.Sub(*req.LastRunAt) < automationCooldown {
		return deny(passed, "cooldown", "automation is within its cooldown since last run"), nil
	}
	passed = append(passed, "cooldown")

	if inQuietHours(req.LocalHour) && !quietHoursExempt(a.Actions) {
		return deny(passed, "quiet_hours", "blocked by quiet hours 22:00-08:00"), nil
	}
	passed = append(passed, "quiet_hours")

	for _, act := range a.Actions {
		limit, ok := actionDailyLimit[act.Type]
		if !ok {
			continue
		}
		key := fmt.Sprintf("automation_action_daily:%s:%s:%s", a.UserID, act.Type, bucket)
		count, err := p.counter.Get(ctx, key)
		if err != nil {
			return Decision{}, err
		}
		if count >= limit {
			return deny(passed, "action_type_daily_limit", fmt.Sprintf("daily limit for action %s exceeded", act.Type)), nil
		}
	}
	passed = append(passed, "action_type_daily_limit")

	if p.membership != nil && a.GroupID != "" {
		member, err := p.membership.IsMember(ctx, a.GroupID, a.UserID)
		if err != nil {
			return Decision{}, err
		}
		if !member {
			return deny(passed, "group_membership", "owner is no longer a member of the automation's group"), nil
		}
	}
	passed = append(passed, "group_membership")

	if err := p.checkPermissionMatrix(req); err != nil {
		return deny(passed, "permission_matrix", err.Error()), nil
	}
	passed = append(passed, "permission_matrix")

	cost := 0
	for _, act := range a.Actions {
		cost += actionCost[act.Type]
	}
	costKey := fmt.Sprintf("automation_cost_daily:%s:%s", a.UserID, bucket)
	spent, err := p.counter.Get(ctx, costKey)
	if err != nil {
		return Decision{}, err
	}
	if spent+int64(cost) > automationCostCapDaily {
		return deny(passed, "cost_budget", "daily automation cost budget exceeded"), nil
	}
	passed = append(passed, "cost_budget")

	return allow(passed), nil
}

func inQuietHours(localHour int) bool {
	return localHour >= 22 || localHour < 8
}

func quietHoursExempt(actions []automation.Action) bool {
	for _, act := range actions {
		if act.Type != automation.ActionAutoRSVP {
			return false
		}
	}
	return len(actions) > 0
}

func (p *AutomationPolicy) checkPermissionMatrix(req RunRequest) error {
	for _, act := range req.Automation.Actions {
		allowedRoles, ok := permissionMatrix[act.Type][req.Target]
		if !ok {
			continue
		}
		if !hasRole(allowedRoles, req.Role) {
			return fmt.Errorf("role %s may not trigger %s targeting %s", req.Role, act.Type, req.Target)
		}
	}
	return nil
}

// CheckBuild implements automationengine.Policy: a lighter, build-time-only
// subset of checks (role/permission matrix, cron constraints already
// enforced by the builder) so invalid automations cannot be saved.
func (p *AutomationPolicy) CheckBuild(ctx context.Context, a *automation.Automation) error {
	for _, act := range a.Actions {
		if _, ok := permissionMatrix[act.Type]; !ok {
			return fmt.Errorf("action type %s has no permission matrix entry", act.Type)
		}
	}
	return nil
}
