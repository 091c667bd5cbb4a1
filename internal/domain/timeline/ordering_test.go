package timeline

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
)

func evt(id uuid.UUID, t EventType, eventDate, recordedAt time.Time) *Event {
	return &Event{ID: id, Type: t, EventDate: eventDate, RecordedAt: recordedAt}
}

func TestCompare_EventDateWins(t *testing.T) {
	a := evt(uuid.New(), TypeOther, date(2026, 1, 1), date(2026, 3, 1))
	b := evt(uuid.New(), TypeNote, date(2026, 1, 2), date(2026, 1, 1))

	if Compare(a, b) != -1 {
		t.Error("earlier eventDate must sort first regardless of recordedAt and type")
	}
	if Compare(b, a) != 1 {
		t.Error("comparison must be antisymmetric")
	}
}

func TestCompare_RecordedAtBreaksSameDateTies(t *testing.T) {
	d := date(2026, 2, 1)
	a := evt(uuid.New(), TypeOther, d, time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	b := evt(uuid.New(), TypeNote, d, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))

	if Compare(a, b) != -1 {
		t.Error("earlier documentation must win a same-date tie before type priority")
	}
}

func TestCompare_TypePriority(t *testing.T) {
	d := date(2026, 2, 1)
	rec := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

	ordered := []EventType{
		TypeFoundational, TypeNote, TypeMedicationStart, TypeHistoryUpdate,
		TypeEncounter, TypeHospitalization,
	}
	for i := 0; i < len(ordered)-1; i++ {
		a := evt(uuid.New(), ordered[i], d, rec)
		b := evt(uuid.New(), ordered[i+1], d, rec)
		if Compare(a, b) != -1 {
			t.Errorf("%s must sort before %s on full tie", ordered[i], ordered[i+1])
		}
	}
}

func TestCompare_MedicationTypesSharePriority(t *testing.T) {
	for _, mt := range []EventType{TypeMedicationStart, TypeMedicationChange, TypeMedicationStop, TypePrescriptionIssued} {
		if mt.Priority() != 2 {
			t.Errorf("%s: expected priority 2, got %d", mt, mt.Priority())
		}
	}
}

func TestCompare_IDIsFinalTiebreak(t *testing.T) {
	d := date(2026, 2, 1)
	rec := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	a := evt(uuid.MustParse("00000000-0000-0000-0000-000000000001"), TypeNote, d, rec)
	b := evt(uuid.MustParse("00000000-0000-0000-0000-000000000002"), TypeNote, d, rec)

	if Compare(a, b) != -1 {
		t.Error("lexicographically smaller id must sort first")
	}
	if Compare(a, a) != 0 {
		t.Error("an event must compare equal to itself")
	}
}

func TestCompare_DateGranularity(t *testing.T) {
	// Same calendar day at different clock times is a tie at tier one.
	a := evt(uuid.New(), TypeNote, time.Date(2026, 2, 1, 23, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC))
	b := evt(uuid.New(), TypeEncounter, time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC),
		time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))

	if Compare(a, b) != -1 {
		t.Error("eventDate must compare at date granularity, deferring to recordedAt")
	}
}

func TestSort_Determinism(t *testing.T) {
	var events []*Event
	rec := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 50; i++ {
		events = append(events, evt(uuid.New(), TypeNote, date(2026, 2, 1+i%5), rec.Add(time.Duration(i%3)*time.Hour)))
	}

	first := make([]*Event, len(events))
	copy(first, events)
	Sort(first, Ascending)

	for trial := 0; trial < 5; trial++ {
		shuffled := make([]*Event, len(events))
		copy(shuffled, events)
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		Sort(shuffled, Ascending)

		for i := range first {
			if first[i].ID != shuffled[i].ID {
				t.Fatalf("trial %d: order differs at %d regardless of insertion order", trial, i)
			}
		}
	}
}

func TestSort_BackdatedInsertionIsStable(t *testing.T) {
	rec := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	a := evt(uuid.New(), TypeNote, date(2026, 1, 10), rec)
	b := evt(uuid.New(), TypeNote, date(2026, 1, 20), rec.Add(time.Hour))

	events := []*Event{a, b}
	Sort(events, Ascending)
	if events[0] != a || events[1] != b {
		t.Fatal("precondition: a before b")
	}

	// Backdated between the two: lands between them, never displacing
	// their relative order.
	c := evt(uuid.New(), TypeNote, date(2026, 1, 15), rec.Add(48*time.Hour))
	events = []*Event{b, c, a}
	Sort(events, Ascending)

	if events[0] != a || events[1] != c || events[2] != b {
		t.Errorf("expected a, c, b; got %v %v %v", events[0].EventDate, events[1].EventDate, events[2].EventDate)
	}
}

func TestSort_DescendingReversesComposite(t *testing.T) {
	rec := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	a := evt(uuid.New(), TypeNote, date(2026, 1, 1), rec)
	b := evt(uuid.New(), TypeNote, date(2026, 1, 2), rec)
	c := evt(uuid.New(), TypeNote, date(2026, 1, 3), rec)

	asc := []*Event{b, a, c}
	Sort(asc, Ascending)
	desc := []*Event{b, a, c}
	Sort(desc, Descending)

	for i := range asc {
		if asc[i] != desc[len(desc)-1-i] {
			t.Fatal("descending must be the exact reverse of ascending")
		}
	}
}

func TestParseDirection(t *testing.T) {
	if ParseDirection("desc") != Descending {
		t.Error("expected desc")
	}
	if ParseDirection("DESC") != Descending {
		t.Error("expected case-insensitive desc")
	}
	if ParseDirection("") != Ascending {
		t.Error("expected asc default")
	}
	if ParseDirection("sideways") != Ascending {
		t.Error("expected asc for unknown input")
	}
}

func TestEventType_Valid(t *testing.T) {
	for _, typ := range []EventType{
		TypeFoundational, TypeNote, TypeMedicationStart, TypeMedicationChange,
		TypeMedicationStop, TypePrescriptionIssued, TypeHistoryUpdate,
		TypeEncounter, TypeHospitalization, TypeLifeEvent, TypeOther,
	} {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if EventType("Surgery").Valid() {
		t.Error("closed enumeration must reject unknown types")
	}
}
