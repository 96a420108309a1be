package training

// BinaryCounts is a running confusion tally for the fixed positive class.
type BinaryCounts struct {
	Positive int

	TP int
	FP int
	TN int
	FN int
}

func (c *BinaryCounts) Add(pred, label int) {
	switch {
	case pred == c.Positive && label == c.Positive:
		c.TP++
	case pred == c.Positive && label != c.Positive:
		c.FP++
	case pred != c.Positive && label != c.Positive:
		c.TN++
	default:
		c.FN++
	}
}

func (c *BinaryCounts) Total() int {
	return c.TP + c.FP + c.TN + c.FN
}

func (c *BinaryCounts) Accuracy() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.TP+c.TN) / float64(c.Total())
}

func (c *BinaryCounts) Precision() float64 {
	if c.TP+c.FP == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FP)
}

func (c *BinaryCounts) Recall() float64 {
	if c.TP+c.FN == 0 {
		return 0
	}
	return float64(c.TP) / float64(c.TP+c.FN)
}

func (c *BinaryCounts) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// EpochMetrics is the per-epoch report sent to the tracking sink.
type EpochMetrics struct {
	Epoch        int
	TrainLoss    float64
	TrainAcc     float64
	ValLoss      float64
	ValAcc       float64
	ValPrecision float64
	ValRecall    float64
	ValF1        float64
}

func (m EpochMetrics) asMap() map[string]float64 {
	return map[string]float64{
		"train_loss":     m.TrainLoss,
		"train_accuracy": m.TrainAcc,
		"val_loss":       m.ValLoss,
		"val_accuracy":   m.ValAcc,
		"val_precision":  m.ValPrecision,
		"val_recall":     m.ValRecall,
		"val_f1":         m.ValF1,
	}
}
