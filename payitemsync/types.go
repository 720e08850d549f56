package payitemsync

import (
	"time"

	"github.com/shopspring/decimal"
)

const payDateLayout = "2006-01-02"

// PayItemRecord is one pay item as the partner reports it.
type PayItemRecord struct {
	ID          string           `json:"id" validate:"required"`
	EmployeeId  string           `json:"employeeId" validate:"required"`
	PayRate     *decimal.Decimal `json:"payRate" validate:"required"`
	HoursWorked *decimal.Decimal `json:"hoursWorked" validate:"required"`
	Date        string           `json:"date" validate:"required,datetime=2006-01-02"`
}

func (r PayItemRecord) PayDate() (time.Time, error) {
	return time.Parse(payDateLayout, r.Date)
}

type feedPage struct {
	PayItems   []PayItemRecord `json:"payItems" validate:"required,dive"`
	IsLastPage *bool           `json:"isLastPage"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	BusinessExternalId string `json:"business_external_id"`
	TriggeredBy        string `json:"triggered_by"`
	CorrelationId      string `json:"correlation_id,omitempty"`
}

type SyncRunResponse struct {
	ID                 uint    `json:"id"`
	BusinessExternalId string  `json:"businessExternalId"`
	Status             string  `json:"status"`
	TriggeredBy        string  `json:"triggeredBy"`
	StartedAt          *string `json:"startedAt"`
	FinishedAt         *string `json:"finishedAt"`
	DurationMs         int64   `json:"durationMs"`
	RecordsReceived    int     `json:"recordsReceived"`
	RecordsSynced      int     `json:"recordsSynced"`
	RecordsSkipped     int     `json:"recordsSkipped"`
	UsersWiped         int     `json:"usersWiped"`
	ItemsDeleted       int64   `json:"itemsDeleted"`
	Error              string  `json:"error,omitempty"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}
