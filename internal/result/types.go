package result

// QueryResult aggregates every repetition of one eval query.
type QueryResult struct {
	Query         string  `json:"query"`
	ShouldTrigger bool    `json:"should_trigger"`
	TriggerRate   float64 `json:"trigger_rate"`
	Triggers      int     `json:"triggers"`
	Runs          int     `json:"runs"`
	Pass          bool    `json:"pass"`
}

// Judge applies the pass rule. A rate exactly at the threshold counts as a
// trigger, so it passes expected-positive queries and fails negative ones.
func Judge(shouldTrigger bool, rate, threshold float64) bool {
	if shouldTrigger {
		return rate >= threshold
	}
	return rate < threshold
}

// NewQueryResult reduces repetition outcomes to a QueryResult.
func NewQueryResult(query string, shouldTrigger bool, outcomes []bool, threshold float64) QueryResult {
	triggers := 0
	for _, o := range outcomes {
		if o {
			triggers++
		}
	}
	var rate float64
	if len(outcomes) > 0 {
		rate = float64(triggers) / float64(len(outcomes))
	}
	return QueryResult{
		Query:         query,
		ShouldTrigger: shouldTrigger,
		TriggerRate:   rate,
		Triggers:      triggers,
		Runs:          len(outcomes),
		Pass:          Judge(shouldTrigger, rate, threshold),
	}
}

type Summary struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

func Summarize(results []QueryResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		if r.Pass {
			s.Passed++
		}
	}
	s.Failed = s.Total - s.Passed
	return s
}

// EvalOutput is the result of one evaluation batch.
type EvalOutput struct {
	SkillName   string        `json:"skill_name"`
	Description string        `json:"description"`
	Results     []QueryResult `json:"results"`
	Summary     Summary       `json:"summary"`
}

// IterationRecord is one step of the optimization loop. Records are
// appended to the history and never modified afterwards.
type IterationRecord struct {
	Iteration    int           `json:"iteration"`
	Description  string        `json:"description"`
	TrainSummary Summary       `json:"train_summary"`
	TrainResults []QueryResult `json:"train_results"`
	TestSummary  *Summary      `json:"test_summary,omitempty"`
	TestResults  []QueryResult `json:"test_results,omitempty"`
}

// BlindedIteration is an IterationRecord without any held-out data. It is
// the only history shape the rewriter ever sees.
type BlindedIteration struct {
	Iteration    int           `json:"iteration"`
	Description  string        `json:"description"`
	TrainSummary Summary       `json:"train_summary"`
	TrainResults []QueryResult `json:"train_results"`
}

func (r *IterationRecord) Blind() BlindedIteration {
	return BlindedIteration{
		Iteration:    r.Iteration,
		Description:  r.Description,
		TrainSummary: r.TrainSummary,
		TrainResults: append([]QueryResult(nil), r.TrainResults...),
	}
}

// BlindHistory blinds every record, preserving order.
func BlindHistory(history []IterationRecord) []BlindedIteration {
	out := make([]BlindedIteration, len(history))
	for i := range history {
		out[i] = history[i].Blind()
	}
	return out
}

type ExitReason string

const (
	ExitAllPassed     ExitReason = "all_passed"
	ExitMaxIterations ExitReason = "max_iterations_reached"
	ExitRewriteFailed ExitReason = "rewrite_failed"
)

// LoopResult is the terminal output of an optimization run.
type LoopResult struct {
	ExitReason          ExitReason        `json:"exit_reason"`
	ExitIteration       int               `json:"exit_iteration"`
	OriginalDescription string            `json:"original_description"`
	BestDescription     string            `json:"best_description"`
	BestIteration       int               `json:"best_iteration"`
	BestScore           string            `json:"best_score"`
	BestTrainScore      string            `json:"best_train_score"`
	BestTestScore       *string           `json:"best_test_score"`
	FinalDescription    string            `json:"final_description"`
	IterationsRun       int               `json:"iterations_run"`
	Holdout             float64           `json:"holdout"`
	TrainSize           int               `json:"train_size"`
	TestSize            int               `json:"test_size"`
	History             []IterationRecord `json:"history"`
}

// LoopProgress is the live snapshot written after every iteration.
type LoopProgress struct {
	OriginalDescription string            `json:"original_description"`
	CurrentDescription  string            `json:"best_description"`
	BestScore           string            `json:"best_score"`
	IterationsRun       int               `json:"iterations_run"`
	Holdout             float64           `json:"holdout"`
	TrainSize           int               `json:"train_size"`
	TestSize            int               `json:"test_size"`
	History             []IterationRecord `json:"history"`
}

// Confusion counts individual runs, not queries.
type Confusion struct {
	TP        int     `json:"tp"`
	TN        int     `json:"tn"`
	FP        int     `json:"fp"`
	FN        int     `json:"fn"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	Accuracy  float64 `json:"accuracy"`
}

func (c Confusion) Correct() int { return c.TP + c.TN }
func (c Confusion) Total() int   { return c.TP + c.TN + c.FP + c.FN }

// ComputeConfusion derives run-level precision, recall and accuracy.
// Precision and recall are 1 when nothing could be counted against them.
func ComputeConfusion(results []QueryResult) Confusion {
	var c Confusion
	for _, r := range results {
		if r.ShouldTrigger {
			c.TP += r.Triggers
			c.FN += r.Runs - r.Triggers
		} else {
			c.FP += r.Triggers
			c.TN += r.Runs - r.Triggers
		}
	}
	c.Precision, c.Recall = 1, 1
	if c.TP+c.FP > 0 {
		c.Precision = float64(c.TP) / float64(c.TP+c.FP)
	}
	if c.TP+c.FN > 0 {
		c.Recall = float64(c.TP) / float64(c.TP+c.FN)
	}
	if total := c.Total(); total > 0 {
		c.Accuracy = float64(c.TP+c.TN) / float64(total)
	}
	return c
}
