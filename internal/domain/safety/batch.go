package safety

// BatchItem is the outcome of one element of a batch operation.
type BatchItem struct {
	Index   int    `json:"index"`
	Key     string `json:"key"`
	OK      bool   `json:"ok"`
	Code    Code   `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// BatchResult aggregates per-item outcomes. A batch never stops at the first
// failure and holds no lock across items.
type BatchResult struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Record appends the outcome for key. A nil err counts as success.
func (b *BatchResult) Record(key string, err error) {
	item := BatchItem{Index: len(b.Items), Key: key, OK: err == nil}
	if err != nil {
		item.Code = CodeOf(err)
		if item.Code == "" {
			item.Code = CodeRepository
		}
		item.Message = err.Error()
		b.Failed++
	} else {
		b.Succeeded++
	}
	b.Items = append(b.Items, item)
}
