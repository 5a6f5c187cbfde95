package model

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/samber/mo"
)

// OccurrencePatch overrides the displayed fields of one occurrence of a
// recurring series. Identity and grouping fields (ID, Recurrence,
// RecurrenceID, IsRecurringInstance, OriginalEventID) are not part of the
// patch and therefore can never be overridden.
type OccurrencePatch struct {
	Title       mo.Option[string]
	Description mo.Option[string]
	Links       mo.Option[[]string]
	FromDate    mo.Option[time.Time]
	ToDate      mo.Option[time.Time]
	FromTime    mo.Option[string]
	ToTime      mo.Option[string]
	IsAllDay    mo.Option[bool]
}

// ApplyTo overwrites every present field of p on ev.
func (p OccurrencePatch) ApplyTo(ev *Event) {
	if v, ok := p.Title.Get(); ok {
		ev.Title = v
	}
	if v, ok := p.Description.Get(); ok {
		ev.Description = v
	}
	if v, ok := p.Links.Get(); ok {
		ev.Links = slices.Clone(v)
	}
	if v, ok := p.FromDate.Get(); ok {
		ev.FromDate = v
	}
	if v, ok := p.ToDate.Get(); ok {
		ev.ToDate = v
	}
	if v, ok := p.FromTime.Get(); ok {
		ev.FromTime = v
	}
	if v, ok := p.ToTime.Get(); ok {
		ev.ToTime = v
	}
	if v, ok := p.IsAllDay.Get(); ok {
		ev.IsAllDay = v
	}
}

// Merge returns p with every present field of other laid on top.
func (p OccurrencePatch) Merge(other OccurrencePatch) OccurrencePatch {
	out := p.Clone()
	out.Title = pick(other.Title, out.Title)
	out.Description = pick(other.Description, out.Description)
	if other.Links.IsPresent() {
		out.Links = mo.Some(slices.Clone(other.Links.MustGet()))
	}
	out.FromDate = pick(other.FromDate, out.FromDate)
	out.ToDate = pick(other.ToDate, out.ToDate)
	out.FromTime = pick(other.FromTime, out.FromTime)
	out.ToTime = pick(other.ToTime, out.ToTime)
	out.IsAllDay = pick(other.IsAllDay, out.IsAllDay)
	return out
}

// IsEmpty reports whether no field is set.
func (p OccurrencePatch) IsEmpty() bool {
	return p.Title.IsAbsent() && p.Description.IsAbsent() && p.Links.IsAbsent() &&
		p.FromDate.IsAbsent() && p.ToDate.IsAbsent() &&
		p.FromTime.IsAbsent() && p.ToTime.IsAbsent() && p.IsAllDay.IsAbsent()
}

// Clone deep-copies the Links slice; other fields are values.
func (p OccurrencePatch) Clone() OccurrencePatch {
	out := p
	if v, ok := p.Links.Get(); ok {
		out.Links = mo.Some(slices.Clone(v))
	}
	return out
}

func pick[T any](preferred, fallback mo.Option[T]) mo.Option[T] {
	if preferred.IsPresent() {
		return preferred
	}
	return fallback
}

// patchWire is the JSON form: absent fields are omitted, never null.
type patchWire struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Links       *[]string  `json:"links,omitempty"`
	FromDate    *time.Time `json:"from_date,omitempty"`
	ToDate      *time.Time `json:"to_date,omitempty"`
	FromTime    *string    `json:"from_time,omitempty"`
	ToTime      *string    `json:"to_time,omitempty"`
	IsAllDay    *bool      `json:"is_all_day,omitempty"`
}

func (p OccurrencePatch) MarshalJSON() ([]byte, error) {
	links := toPtr(p.Links)
	if links != nil && *links == nil {
		// A present nil list clears the links; null would read back as absent.
		links = &[]string{}
	}
	return json.Marshal(patchWire{
		Title:       toPtr(p.Title),
		Description: toPtr(p.Description),
		Links:       links,
		FromDate:    toPtr(p.FromDate),
		ToDate:      toPtr(p.ToDate),
		FromTime:    toPtr(p.FromTime),
		ToTime:      toPtr(p.ToTime),
		IsAllDay:    toPtr(p.IsAllDay),
	})
}

func (p *OccurrencePatch) UnmarshalJSON(data []byte) error {
	var w patchWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = OccurrencePatch{
		Title:       fromPtr(w.Title),
		Description: fromPtr(w.Description),
		Links:       fromPtr(w.Links),
		FromDate:    fromPtr(w.FromDate),
		ToDate:      fromPtr(w.ToDate),
		FromTime:    fromPtr(w.FromTime),
		ToTime:      fromPtr(w.ToTime),
		IsAllDay:    fromPtr(w.IsAllDay),
	}
	return nil
}

func toPtr[T any](o mo.Option[T]) *T {
	if v, ok := o.Get(); ok {
		return &v
	}
	return nil
}

func fromPtr[T any](v *T) mo.Option[T] {
	if v == nil {
		return mo.None[T]()
	}
	return mo.Some(*v)
}
