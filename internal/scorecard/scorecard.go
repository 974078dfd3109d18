// Package scorecard holds the static configuration of the points system:
// the ordered stage table, per-event point values, milestone ranks, the
// automation field predicates, and the per-stage compliance rulesets.
// A Config is loaded once at startup and never mutated afterwards; every
// component receives it by injection so tests can swap it freely.
package scorecard

import (
	"fmt"
	"os"
	"sort"

	"sales_enforcer_backend/internal/rules"

	"gopkg.in/yaml.v3"
)

// Stage is one ordered step of the sales pipeline. Points are awarded on
// a deal's first entry into the stage.
type Stage struct {
	ID     int    `yaml:"id"`
	Name   string `yaml:"name"`
	Order  int    `yaml:"order"`
	Points int    `yaml:"points"`
}

// PointValues configures the event point amounts and bonus thresholds.
type PointValues struct {
	WonDeal                     int `yaml:"won_deal_points"`
	WeeklyMinimum               int `yaml:"weekly_minimum"`
	BonusLeadIntakeSameDay      int `yaml:"bonus_lead_intake_same_day"`
	BonusProposalPaymentSameDay int `yaml:"bonus_proposal_payment_same_day"`
	BonusWonFastDays            int `yaml:"bonus_won_fast_days"`
	BonusWonFast                int `yaml:"bonus_won_fast_points"`
}

// Milestone is a cumulative-score rank threshold, credited once per user.
type Milestone struct {
	Rank      string `yaml:"rank"`
	Threshold int    `yaml:"threshold"`
}

// AutomationField identifies a CRM custom field used by the automatic
// WON/LOST resolution predicates. YesID is the option id meaning "Yes"
// for option-typed fields; zero for free-form fields like loss reason.
type AutomationField struct {
	Key   string `yaml:"key"`
	YesID int    `yaml:"yes_id"`
}

// AutomationFields groups the fields driving automatic status resolution.
// The predicate set is configuration, not code: contract signed and
// payment taken both affirmative resolve a deal to won; a populated loss
// reason resolves it to lost.
type AutomationFields struct {
	ContractSigned AutomationField `yaml:"contract_signed"`
	PaymentTaken   AutomationField `yaml:"payment_taken"`
	LossReason     AutomationField `yaml:"loss_reason"`
}

// BonusStages names the stages referenced by the bonus rules.
type BonusStages struct {
	LeadIntakeStageID int `yaml:"lead_intake_stage_id"`
	ProposalStageID   int `yaml:"proposal_stage_id"`
	CloseStageID      int `yaml:"close_stage_id"`
}

// Config is the full scorecard. Immutable after Load.
type Config struct {
	Stages                   []Stage              `yaml:"stages"`
	Points                   PointValues          `yaml:"points"`
	RevivalMinimumStageOrder int                  `yaml:"revival_minimum_stage_order"`
	Milestones               []Milestone          `yaml:"milestones"` // declared low to high
	Automation               AutomationFields     `yaml:"automation_fields"`
	BonusStages              BonusStages          `yaml:"bonus_stages"`
	ComplianceRules          map[int]rules.Rule   `yaml:"compliance_rules"` // keyed by target stage id
	QuarterlyPointsTarget    int                  `yaml:"quarterly_points_target"`

	stagesByID map[int]Stage
}

// Load reads the scorecard from the YAML file at path; an empty path
// loads the embedded default scorecard.
func Load(path string) (*Config, error) {
	raw := defaultScorecard
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scorecard %s: %w", path, err)
		}
		raw = data
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse scorecard: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.stagesByID = make(map[int]Stage, len(cfg.Stages))
	for _, stage := range cfg.Stages {
		cfg.stagesByID[stage.ID] = stage
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Stages) == 0 {
		return fmt.Errorf("scorecard: no stages configured")
	}

	seenIDs := make(map[int]bool, len(c.Stages))
	seenOrders := make(map[int]bool, len(c.Stages))
	for _, stage := range c.Stages {
		if stage.Order < 1 {
			return fmt.Errorf("scorecard: stage %d (%s) has order %d; orders start at 1, order 0 is reserved for \"no previous stage\"", stage.ID, stage.Name, stage.Order)
		}
		if seenIDs[stage.ID] {
			return fmt.Errorf("scorecard: duplicate stage id %d", stage.ID)
		}
		if seenOrders[stage.Order] {
			return fmt.Errorf("scorecard: duplicate stage order %d", stage.Order)
		}
		seenIDs[stage.ID] = true
		seenOrders[stage.Order] = true
	}

	for i := 1; i < len(c.Milestones); i++ {
		if c.Milestones[i].Threshold <= c.Milestones[i-1].Threshold {
			return fmt.Errorf("scorecard: milestones must be declared with strictly increasing thresholds (%s)", c.Milestones[i].Rank)
		}
	}

	for stageID := range c.ComplianceRules {
		if !seenIDs[stageID] {
			return fmt.Errorf("scorecard: compliance ruleset references unknown stage id %d", stageID)
		}
	}

	return nil
}

// StageByID looks up a stage by its CRM stage id.
func (c *Config) StageByID(id int) (Stage, bool) {
	stage, ok := c.stagesByID[id]
	return stage, ok
}

// StageOrder returns the pipeline ordinal for a stage id. Unknown ids,
// including the "no previous stage" case, have order 0.
func (c *Config) StageOrder(id int) int {
	if stage, ok := c.stagesByID[id]; ok {
		return stage.Order
	}
	return 0
}

// RulesetFor returns the compliance ruleset for entering the given stage.
// A stage with no configured ruleset returns the zero Rule, which always
// evaluates as passing.
func (c *Config) RulesetFor(stageID int) rules.Rule {
	return c.ComplianceRules[stageID]
}

// MilestonesDescending returns the milestone table ordered from highest
// threshold to lowest, the order the milestone walk checks them in.
func (c *Config) MilestonesDescending() []Milestone {
	out := append([]Milestone(nil), c.Milestones...)
	sort.Slice(out, func(i, j int) bool { return out[i].Threshold > out[j].Threshold })
	return out
}
