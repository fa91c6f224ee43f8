package circuit

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approxAngles = cmp.Comparer(func(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
})

func TestNormalizeAngle(t *testing.T) {
	assert.InDelta(t, 0, NormalizeAngle(0), 1e-12)
	assert.InDelta(t, 0, NormalizeAngle(2*math.Pi), 1e-12)
	assert.InDelta(t, math.Pi/2, NormalizeAngle(-3*math.Pi/2), 1e-12)
	assert.InDelta(t, math.Pi, NormalizeAngle(5*math.Pi), 1e-12)
}

func TestInverseReversesAndNegates(t *testing.T) {
	seq := Sequence{Name: "s", Ops: []Op{
		NewH(0),
		CPhase(math.Pi/2, 1, 0),
		NewX(1),
	}}
	got := Inverse(seq)
	want := Sequence{Name: "s_dg", Ops: []Op{
		NewX(1),
		Controlled{Controls: []int{1}, Inner: Gate{Kind: Phase, Angle: 3 * math.Pi / 2, Targets: []int{0}}},
		NewH(0),
	}}
	if diff := cmp.Diff(want, got, approxAngles); diff != "" {
		t.Fatalf("Inverse mismatch (-want +got):\n%s", diff)
	}
}

func TestInverseIsInvolution(t *testing.T) {
	seq := Sequence{Name: "s", Ops: []Op{
		Place(Sequence{Name: "inner", Ops: []Op{NewPhase(1, 0), NewSwap(0, 1)}}, 2, 3),
		CSwap(0, 1, 2),
		NewPhase(0.25, 3),
	}}
	back := Inverse(Inverse(seq))
	// angles round-trip through two reductions mod 2π
	if diff := cmp.Diff(Flatten(seq), Flatten(back), approxAngles); diff != "" {
		t.Fatalf("double inverse mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "s", back.(Sequence).Name)
}

func TestControlMerges(t *testing.T) {
	op := Control(Control(NewX(2), 1), 0)
	want := Controlled{Controls: []int{0, 1}, Inner: NewX(2)}
	if diff := cmp.Diff(want, op); diff != "" {
		t.Fatalf("Control mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, NewH(0), Control(NewH(0)))
}

func TestFlattenResolvesPlacement(t *testing.T) {
	adder := Sequence{Name: "add", Ops: []Op{NewPhase(math.Pi, 0), CX(0, 1)}}
	top := Sequence{Ops: []Op{
		Control(Place(adder, 3, 5), 0, 1),
	}}
	got := Flatten(top)
	want := []Instruction{
		{Kind: Phase, Angle: math.Pi, Targets: []int{3}, Controls: []int{0, 1}},
		{Kind: X, Targets: []int{5}, Controls: []int{0, 1, 3}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestFlattenNestedPlacement(t *testing.T) {
	inner := Sequence{Ops: []Op{NewX(1)}}
	mid := Sequence{Ops: []Op{Place(inner, 2, 0)}}
	top := Place(mid, 7, 8, 9)
	got := Flatten(top)
	require.Len(t, got, 1)
	// inner wire 1 -> mid wire 0 -> top wire 7
	assert.Equal(t, []int{7}, got[0].Targets)
}

func TestCount(t *testing.T) {
	s := Count(Sequence{Ops: []Op{
		NewH(0), NewH(1), CX(0, 1), Control(NewPhase(1, 2), 0, 1),
	}})
	assert.Equal(t, 4, s.Gates)
	assert.Equal(t, 2, s.ByKind[H])
	assert.Equal(t, 2, s.Controlled)
	assert.Equal(t, 2, s.MaxControls)
}

func TestInitializeToValue(t *testing.T) {
	seq := InitializeToValue(5, []int{4, 5, 6})
	want := []Instruction{
		{Kind: X, Targets: []int{4}},
		{Kind: X, Targets: []int{6}},
	}
	if diff := cmp.Diff(want, Flatten(seq)); diff != "" {
		t.Fatalf("InitializeToValue mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, InitializeToValue(0, []int{0, 1}).Ops)
}

func TestLayout(t *testing.T) {
	var l Layout
	e := l.Add("exponent", 3)
	r := l.Add("result", 2)
	assert.Equal(t, 5, l.Width())
	assert.Equal(t, []int{3, 4}, r.Qubits())
	assert.Equal(t, 2, e.Qubit(2))

	got, ok := l.Register("result")
	require.True(t, ok)
	assert.Equal(t, r, got)
	_, ok = l.Register("missing")
	assert.False(t, ok)

	// index 0b10110: exponent = 0b110, result = 0b10
	assert.Equal(t, uint64(6), e.Value(0b10110))
	assert.Equal(t, uint64(2), r.Value(0b10110))
}

func TestValidate(t *testing.T) {
	var l Layout
	reg := l.Add("q", 2)
	c := &Circuit{Name: "ok", Layout: l, Body: Sequence{Ops: []Op{NewH(0), CX(0, 1)}}, Measure: reg}
	require.NoError(t, c.Validate())

	c.Body = Sequence{Ops: []Op{CX(1, 1)}}
	assert.True(t, errors.Is(c.Validate(), ErrInvalidCircuit))

	c.Body = Sequence{Ops: []Op{NewX(2)}}
	assert.True(t, errors.Is(c.Validate(), ErrInvalidCircuit))

	// local wire 1 has no placement
	c.Body = Place(Sequence{Ops: []Op{NewX(1)}}, 0)
	assert.True(t, errors.Is(c.Validate(), ErrInvalidCircuit))
}

func TestFingerprintFollowsContent(t *testing.T) {
	build := func(name string, body Op) *Circuit {
		var l Layout
		reg := l.Add("q", 2)
		return &Circuit{Name: name, Layout: l, Body: body, Measure: reg}
	}
	empty := build("c", Sequence{})
	flip := build("c", NewX(0))
	assert.NotEqual(t, empty.Fingerprint(), flip.Fingerprint())

	// names do not matter, angles and wiring do
	assert.Equal(t, flip.Fingerprint(), build("other", NewX(0)).Fingerprint())
	assert.NotEqual(t, flip.Fingerprint(), build("c", NewX(1)).Fingerprint())
	assert.NotEqual(t,
		build("c", NewPhase(math.Pi/2, 0)).Fingerprint(),
		build("c", NewPhase(math.Pi/4, 0)).Fingerprint())
	assert.NotEqual(t,
		build("c", NewX(1)).Fingerprint(),
		build("c", Control(NewX(1), 0)).Fingerprint())

	narrow := build("c", NewX(0))
	narrow.Measure = Register{Name: "q", Offset: 0, Width: 1}
	assert.NotEqual(t, flip.Fingerprint(), narrow.Fingerprint())
}
