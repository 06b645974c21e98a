package news

import "time"

// CandidateItem описывает одну позицию рейтинга, полученную в текущем цикле.
type CandidateItem struct {
	// Identity - канонический URL статьи, ключ леджера.
	Identity string `json:"link"`
	Title    string `json:"title"`
}

// DetailContent - тело статьи и сопутствующие данные.
type DetailContent struct {
	Body            string    `json:"body"`
	PublicationTime time.Time `json:"publication_time,omitempty"`
	ImageURL        string    `json:"image_url,omitempty"`
}

// HasPublicationTime сообщает, известно ли время публикации.
func (d DetailContent) HasPublicationTime() bool {
	return !d.PublicationTime.IsZero()
}

// EnrichedContent - результат перевода и генерации тегов.
type EnrichedContent struct {
	TranslatedTitle string   `json:"translated_title"`
	TranslatedBody  string   `json:"translated_body"`
	Tags            []string `json:"hashtags"`
}

// LedgerRecord - запись об окончательном решении по статье.
// После создания не изменяется и не удаляется.
type LedgerRecord struct {
	Title            string `json:"title"`
	PublishMessageID *int64 `json:"tg_channel_msg_id"`
	Skipped          bool   `json:"skipped"`
}

// Published сообщает, была ли статья успешно опубликована.
func (r LedgerRecord) Published() bool {
	return !r.Skipped && r.PublishMessageID != nil
}

// LedgerTotals - агрегаты по леджеру для отчётов.
type LedgerTotals struct {
	Total     int `json:"total"`
	Published int `json:"published"`
	Skipped   int `json:"skipped"`
}

// SummarizeLedger считает агрегаты по снимку леджера.
func SummarizeLedger(records map[string]LedgerRecord) LedgerTotals {
	totals := LedgerTotals{Total: len(records)}
	for _, rec := range records {
		switch {
		case rec.Skipped:
			totals.Skipped++
		case rec.PublishMessageID != nil:
			totals.Published++
		}
	}
	return totals
}

// MessageID упаковывает идентификатор сообщения для LedgerRecord.
func MessageID(id int64) *int64 {
	return &id
}
