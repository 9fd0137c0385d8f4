// Package ical renders materialized events as iCalendar documents.
package ical

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	goical "github.com/emersion/go-ical"

	"github.com/accord-hub/accord/internal/domain/event"
)

const productID = "-//accord//negotiation engine//EN"

// Render encodes e as a VCALENDAR holding a single VEVENT.
func Render(e *event.Event) ([]byte, error) {
	if e == nil {
		return nil, errors.New("render ics: nil event")
	}
	cal := goical.NewCalendar()
	cal.Props.SetText(goical.PropVersion, "2.0")
	cal.Props.SetText(goical.PropProductID, productID)
	cal.Children = append(cal.Children, toVEvent(e))

	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("render ics: %w", err)
	}
	return buf.Bytes(), nil
}

func toVEvent(e *event.Event) *goical.Component {
	ve := goical.NewComponent(goical.CompEvent)
	ve.Props.SetText(goical.PropUID, e.ID.String())
	ve.Props.SetText(goical.PropSummary, e.Title)
	ve.Props.SetDateTime(goical.PropDateTimeStamp, e.CreatedAt.UTC())
	ve.Props.SetDateTime(goical.PropDateTimeStart, e.StartsAt.UTC())
	ve.Props.SetDateTime(goical.PropDateTimeEnd, e.EndsAt.UTC())
	if e.VenueName != "" {
		ve.Props.SetText(goical.PropLocation, e.VenueName)
	}
	if e.Organizer != "" {
		p := goical.NewProp(goical.PropOrganizer)
		p.SetText(calAddress(e.Organizer))
		p.Params.Set(goical.ParamCommonName, e.Organizer)
		ve.Props.Add(p)
	}
	for _, attendee := range e.Attendees {
		p := goical.NewProp(goical.PropAttendee)
		p.SetText(calAddress(attendee))
		p.Params.Set(goical.ParamCommonName, attendee)
		p.Params.Set(goical.ParamParticipationStatus, "ACCEPTED")
		ve.Props.Add(p)
	}
	return ve
}

// calAddress maps an opaque user id to a CAL-ADDRESS value.
func calAddress(userID string) string {
	if strings.Contains(userID, "@") {
		return "mailto:" + userID
	}
	return "urn:accord:user:" + userID
}
