package agent

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const minCollectiveConfidence = 55.0

// Consortium modes
const (
	ModeVote     = "vote"
	ModeWeighted = "weighted"
)

// Vote is one solo agent's contribution to the meta decision
type Vote struct {
	AgentName      string
	Decision       *Decision
	PerformancePct float64
}

// Consortium combines solo decisions into one meta decision. The combined
// decision still passes the signal combiner and gates through the meta
// agent's ExecuteTrade.
type Consortium struct {
	mode   string
	logger zerolog.Logger
}

// NewConsortium creates a consortium; an unknown mode falls back to weighted
func NewConsortium(mode string) *Consortium {
	if mode != ModeVote {
		mode = ModeWeighted
	}
	return &Consortium{
		mode:   mode,
		logger: log.With().Str("component", "consortium").Logger(),
	}
}

// Combine merges the votes into a single decision
func (c *Consortium) Combine(votes []Vote) *Decision {
	valid := votes[:0:0]
	for _, v := range votes {
		if v.Decision != nil {
			valid = append(valid, v)
		}
	}
	if len(valid) == 0 {
		return &Decision{Decision: "HOLD", Reasoning: "no agent produced a decision"}
	}

	if c.mode == ModeVote {
		return c.combineByVote(valid)
	}
	return c.combineWeighted(valid)
}

// combineWeighted scores each action by performance-weighted confidence.
// Agents that lost money carry the minimum weight, they never subtract.
func (c *Consortium) combineWeighted(votes []Vote) *Decision {
	totalConfidence := 0.0
	for _, v := range votes {
		totalConfidence += float64(v.Decision.Confidence)
	}
	meanConfidence := totalConfidence / float64(len(votes))
	if meanConfidence < minCollectiveConfidence {
		c.logger.Info().Float64("mean_confidence", meanConfidence).Msg("Consortium declined to trade")
		return &Decision{Decision: "HOLD", Reasoning: "Confiance collective insuffisante"}
	}

	totalWeight := 0.0
	weights := make([]float64, len(votes))
	for i, v := range votes {
		w := v.PerformancePct
		if w < 0 {
			w = 0
		}
		weights[i] = w + 1
		totalWeight += weights[i]
	}

	scores := map[string]float64{}
	for i, v := range votes {
		w := weights[i] / totalWeight
		scores[v.Decision.Decision] += w * float64(v.Decision.Confidence) / 100
	}

	winner := "HOLD"
	best := -1.0
	for action, score := range scores {
		if score > best {
			best = score
			winner = action
		}
	}
	if winner == "HOLD" {
		return &Decision{Decision: "HOLD", Reasoning: "weighted majority holds"}
	}
	return c.electLeader(votes, winner)
}

// combineByVote is simple plurality; ties break on average confidence
func (c *Consortium) combineByVote(votes []Vote) *Decision {
	counts := map[string]int{}
	confSums := map[string]float64{}
	for _, v := range votes {
		counts[v.Decision.Decision]++
		confSums[v.Decision.Decision] += float64(v.Decision.Confidence)
	}

	winner := ""
	for action, n := range counts {
		if winner == "" {
			winner = action
			continue
		}
		switch {
		case n > counts[winner]:
			winner = action
		case n == counts[winner]:
			if confSums[action]/float64(n) > confSums[winner]/float64(counts[winner]) {
				winner = action
			}
		}
	}
	if winner == "HOLD" || winner == "" {
		return &Decision{Decision: "HOLD", Reasoning: "plurality holds"}
	}
	return c.electLeader(votes, winner)
}

// electLeader builds the combined decision around the most confident voter
// of the winning action
func (c *Consortium) electLeader(votes []Vote, action string) *Decision {
	var leader *Decision
	confSum, n := 0.0, 0
	for _, v := range votes {
		if v.Decision.Decision != action {
			continue
		}
		confSum += float64(v.Decision.Confidence)
		n++
		if leader == nil || v.Decision.Confidence > leader.Confidence {
			leader = v.Decision
		}
	}

	combined := &Decision{
		Decision:   action,
		Symbol:     leader.Symbol,
		Quantity:   leader.Quantity,
		Confidence: int(confSum / float64(n)),
		RiskLevel:  leader.RiskLevel,
		Reasoning:  "consortium " + c.mode + " consensus: " + leader.Reasoning,
	}
	c.logger.Info().
		Str("action", action).
		Str("symbol", combined.Symbol).
		Int("confidence", combined.Confidence).
		Int("supporters", n).
		Msg("Consortium decision")
	return combined
}
