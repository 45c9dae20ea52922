// Package reconcile mirrors billing provider events onto local subscription
// and booking state.
package reconcile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v78"
)

type Kind string

const (
	KindSubscriptionCreated  Kind = "customer.subscription.created"
	KindSubscriptionUpdated  Kind = "customer.subscription.updated"
	KindSubscriptionCanceled Kind = "customer.subscription.deleted"
	KindSubscriptionPaused   Kind = "customer.subscription.paused"
	KindSubscriptionResumed  Kind = "customer.subscription.resumed"
	KindProductUpdated       Kind = "product.updated"
)

var (
	ErrUnhandledEvent = errors.New("unhandled event type")
	ErrMalformedEvent = errors.New("malformed event payload")
)

// Event is one of the variants below.
type Event interface {
	Kind() Kind
}

type SubscriptionCreated struct{ Subscription SubscriptionObject }
type SubscriptionUpdated struct{ Subscription SubscriptionObject }
type SubscriptionCanceled struct{ Subscription SubscriptionObject }
type SubscriptionPaused struct{ Subscription SubscriptionObject }
type SubscriptionResumed struct{ Subscription SubscriptionObject }
type ProductUpdated struct{ ProductID string }

func (SubscriptionCreated) Kind() Kind  { return KindSubscriptionCreated }
func (SubscriptionUpdated) Kind() Kind  { return KindSubscriptionUpdated }
func (SubscriptionCanceled) Kind() Kind { return KindSubscriptionCanceled }
func (SubscriptionPaused) Kind() Kind   { return KindSubscriptionPaused }
func (SubscriptionResumed) Kind() Kind  { return KindSubscriptionResumed }
func (ProductUpdated) Kind() Kind       { return KindProductUpdated }

// SubscriptionObject holds the subscription fields reconciliation reads.
// Zero times mean the provider did not send the field.
type SubscriptionObject struct {
	ID          string
	CustomerID  string
	Status      string
	ProductID   string
	LessonID    int
	StartDate   time.Time
	PeriodStart time.Time
	PeriodEnd   time.Time
	CancelAt    time.Time
	CanceledAt  time.Time
	EndedAt     time.Time
}

// ExpandableID decodes a provider reference sent either as a bare id or as
// the expanded object.
type ExpandableID string

func (e *ExpandableID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*e = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*e = ExpandableID(s)
		return nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = ExpandableID(obj.ID)
	return nil
}

type wirePrice struct {
	Product ExpandableID `json:"product"`
}

type wireItem struct {
	CurrentPeriodStart int64      `json:"current_period_start"`
	CurrentPeriodEnd   int64      `json:"current_period_end"`
	Price              *wirePrice `json:"price"`
	Plan               *wirePrice `json:"plan"`
}

type wireSubscription struct {
	ID                 string            `json:"id"`
	Customer           ExpandableID      `json:"customer"`
	Status             string            `json:"status"`
	StartDate          int64             `json:"start_date"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAt           int64             `json:"cancel_at"`
	CanceledAt         int64             `json:"canceled_at"`
	EndedAt            int64             `json:"ended_at"`
	Metadata           map[string]string `json:"metadata"`
	Plan               *wirePrice        `json:"plan"`
	Items              struct {
		Data []wireItem `json:"data"`
	} `json:"items"`
}

var lessonMetadataKeys = []string{"lessonId", "lesson_id"}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func (w wireSubscription) object() (SubscriptionObject, error) {
	if w.ID == "" {
		return SubscriptionObject{}, fmt.Errorf("%w: subscription without id", ErrMalformedEvent)
	}

	obj := SubscriptionObject{
		ID:         w.ID,
		CustomerID: string(w.Customer),
		Status:     w.Status,
		StartDate:  unix(w.StartDate),
		CancelAt:   unix(w.CancelAt),
		CanceledAt: unix(w.CanceledAt),
		EndedAt:    unix(w.EndedAt),
	}

	// Newer API versions only carry the billing period on the items.
	var first *wireItem
	if len(w.Items.Data) > 0 {
		first = &w.Items.Data[0]
	}
	start, end := w.CurrentPeriodStart, w.CurrentPeriodEnd
	if first != nil {
		if start == 0 {
			start = first.CurrentPeriodStart
		}
		if end == 0 {
			end = first.CurrentPeriodEnd
		}
	}
	obj.PeriodStart = unix(start)
	obj.PeriodEnd = unix(end)

	switch {
	case first != nil && first.Price != nil && first.Price.Product != "":
		obj.ProductID = string(first.Price.Product)
	case first != nil && first.Plan != nil && first.Plan.Product != "":
		obj.ProductID = string(first.Plan.Product)
	case w.Plan != nil:
		obj.ProductID = string(w.Plan.Product)
	}

	for _, key := range lessonMetadataKeys {
		raw, ok := w.Metadata[key]
		if !ok || raw == "" {
			continue
		}
		id, err := strconv.Atoi(raw)
		if err != nil || id < 1 {
			return SubscriptionObject{}, fmt.Errorf("%w: metadata %s=%q is not a lesson id", ErrMalformedEvent, key, raw)
		}
		obj.LessonID = id
		break
	}
	return obj, nil
}

// ParseSubscription decodes a provider subscription resource.
func ParseSubscription(raw []byte) (SubscriptionObject, error) {
	var w wireSubscription
	if err := json.Unmarshal(raw, &w); err != nil {
		return SubscriptionObject{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return w.object()
}

// FromStripe converts a retrieved subscription into the reconciliation shape.
func FromStripe(s *stripe.Subscription) (SubscriptionObject, error) {
	if s == nil {
		return SubscriptionObject{}, fmt.Errorf("%w: nil subscription", ErrMalformedEvent)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return SubscriptionObject{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return ParseSubscription(raw)
}

// Parse turns a verified provider event into one of the known variants.
// Types outside the set return ErrUnhandledEvent.
func Parse(event stripe.Event) (Event, error) {
	kind := Kind(event.Type)
	switch kind {
	case KindSubscriptionCreated, KindSubscriptionUpdated, KindSubscriptionCanceled,
		KindSubscriptionPaused, KindSubscriptionResumed, KindProductUpdated:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnhandledEvent, event.Type)
	}

	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s has no data", ErrMalformedEvent, event.Type)
	}

	if kind == KindProductUpdated {
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &p); err != nil || p.ID == "" {
			return nil, fmt.Errorf("%w: product without id", ErrMalformedEvent)
		}
		return ProductUpdated{ProductID: p.ID}, nil
	}

	obj, err := ParseSubscription(event.Data.Raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindSubscriptionCreated:
		return SubscriptionCreated{Subscription: obj}, nil
	case KindSubscriptionUpdated:
		return SubscriptionUpdated{Subscription: obj}, nil
	case KindSubscriptionCanceled:
		return SubscriptionCanceled{Subscription: obj}, nil
	case KindSubscriptionPaused:
		return SubscriptionPaused{Subscription: obj}, nil
	default:
		return SubscriptionResumed{Subscription: obj}, nil
	}
}
