package csvimport

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const header = "Equipment Name,Type,Flowrate,Pressure,Temperature\n"

func validate(t *testing.T, content string) (*ValidatedTable, error) {
	t.Helper()
	table, err := ReadTable(strings.NewReader(content))
	require.NoError(t, err)
	return NewValidator(DefaultColumns()).Validate(table)
}

func TestValidateMissingColumnsListsAll(t *testing.T) {
	_, err := validate(t, "Equipment Name,Flowrate,Extra\nPump-1,10,x\n")

	var structural *StructuralError
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, []string{"Type", "Pressure", "Temperature"}, structural.Missing)
}

func TestValidateEmptyFileIsStructural(t *testing.T) {
	_, err := validate(t, "")

	var structural *StructuralError
	require.True(t, errors.As(err, &structural))
	assert.Equal(t, DefaultColumns().Labels(), structural.Missing)
}

func TestValidateStructuralTakesPrecedence(t *testing.T) {
	_, err := validate(t, "Equipment Name,Type,Flowrate,Pressure\n,,-1,abc\n")

	var structural *StructuralError
	require.True(t, errors.As(err, &structural))
	var rowErrs RowErrors
	assert.False(t, errors.As(err, &rowErrs))
}

func TestValidateCollectsOneErrorPerInvalidRow(t *testing.T) {
	content := header +
		"Pump-1,Pump,150.5,45.2,85.0\n" +
		" ,Pump,10,10,10\n" +
		"Valve-1,Valve,0,-3,abc\n" +
		"Reactor-1,Reactor,200,120.5,-40\n" +
		"HX-1,,10,x,\n"

	_, err := validate(t, content)

	var rowErrs RowErrors
	require.True(t, errors.As(err, &rowErrs))
	require.Len(t, rowErrs, 3)

	assert.Equal(t, 2, rowErrs[0].Row)
	assert.Equal(t, "Equipment Name", rowErrs[0].Field)
	assert.Equal(t, ReasonEmpty, rowErrs[0].Reason)

	assert.Equal(t, 3, rowErrs[1].Row)
	assert.Equal(t, "Flowrate", rowErrs[1].Field)
	assert.Equal(t, ReasonNotPositive, rowErrs[1].Reason)
	assert.Equal(t, []Violation{
		{Field: "Flowrate", Reason: ReasonNotPositive},
		{Field: "Pressure", Reason: ReasonNotPositive},
		{Field: "Temperature", Reason: ReasonNotANumber},
	}, rowErrs[1].Violations)

	assert.Equal(t, 5, rowErrs[2].Row)
	assert.Len(t, rowErrs[2].Violations, 3)
}

func TestValidateRejectsNonFiniteNumbers(t *testing.T) {
	_, err := validate(t, header+"P,Pump,NaN,1,Inf\n")

	var rowErrs RowErrors
	require.True(t, errors.As(err, &rowErrs))
	require.Len(t, rowErrs, 1)
	assert.Equal(t, []Violation{
		{Field: "Flowrate", Reason: ReasonNotANumber},
		{Field: "Temperature", Reason: ReasonNotANumber},
	}, rowErrs[0].Violations)
}

func TestValidateAcceptsDecimalNotationOnly(t *testing.T) {
	_, err := validate(t, header+
		"A,Pump,0x1p4,1,20\n"+
		"B,Pump,1_000,1,20\n"+
		"C,Pump,10,infinity,20\n"+
		"D,Pump,+1.5e2,.5,-3E-1\n")

	var rowErrs RowErrors
	require.True(t, errors.As(err, &rowErrs))
	require.Len(t, rowErrs, 3)
	assert.Equal(t, 1, rowErrs[0].Row)
	assert.Equal(t, "Flowrate", rowErrs[0].Field)
	assert.Equal(t, 2, rowErrs[1].Row)
	assert.Equal(t, 3, rowErrs[2].Row)
	assert.Equal(t, "Pressure", rowErrs[2].Field)
}

func TestValidateHeaderOnlyIsValid(t *testing.T) {
	validated, err := validate(t, header)
	require.NoError(t, err)
	assert.Equal(t, 0, validated.Len())
	assert.Empty(t, Parse(validated))
}

func TestValidateShortRowReadsAsEmpty(t *testing.T) {
	_, err := validate(t, header+"Pump-1,Pump,1,2\n")

	var rowErrs RowErrors
	require.True(t, errors.As(err, &rowErrs))
	assert.Equal(t, "Temperature", rowErrs[0].Field)
}

func TestValidateCustomColumns(t *testing.T) {
	cols := Columns{Name: "name", Category: "kind", Flowrate: "a", Pressure: "b", Temperature: "c"}
	table, err := ReadTable(strings.NewReader("c,b,a,kind,name\n-5,2,3,Pump,P1\n"))
	require.NoError(t, err)

	validated, err := NewValidator(cols).Validate(table)
	require.NoError(t, err)

	values := Parse(validated)
	require.Len(t, values, 1)
	assert.Equal(t, "P1", values[0].Name)
	assert.Equal(t, 3.0, values[0].Flowrate)
	assert.Equal(t, -5.0, values[0].Temperature)
}
