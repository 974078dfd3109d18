package scorecard

import _ "embed"

// defaultScorecard is the production scorecard shipped with the binary.
// Deployments override it via SCORECARD_PATH.
//
//go:embed default_scorecard.yaml
var defaultScorecard []byte
