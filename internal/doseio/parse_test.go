package doseio_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/hrtlevels/hrtlevels/internal/doseio"
)

func TestNormalizeRoute(t *testing.T) {
	tests := map[string]string{
		"injection":         "injection",
		"IM":                "injection",
		" Intramuscular ":   "injection",
		"SubQ":              "injection",
		"PO":                "oral",
		"Sublingual-Tablet": "sublingual",
		"sl":                "sublingual",
		"Transdermal Patch": "patch",
		"Pflaster":          "patch",
		"gél":               "gel",
		"nasal":             "nasal",
	}
	for in, want := range tests {
		assert.Equal(t, want, doseio.NormalizeRoute(in), in)
	}
}

func TestNormalizeCompound(t *testing.T) {
	tests := map[string]string{
		"E2":                    "E2",
		"Estradiol Hemihydrate": "E2",
		"Œstradiol":             "Œstradiol",
		"Östradiolvalerat":      "EV",
		"estradiol_valerate":    "EV",
		"ev":                    "EV",
		"Androcur":              "CPA",
		"een":                   "EEn",
		"EUN":                   "EUn",
		" progesterone ":        "progesterone",
	}
	for in, want := range tests {
		assert.Equal(t, want, doseio.NormalizeCompound(in), in)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		file        string
		want        doseio.Format
		wantErr     bool
	}{
		{name: "csv content type", contentType: "text/csv; charset=utf-8", want: doseio.FormatCSV},
		{name: "json content type", contentType: "application/json", want: doseio.FormatJSON},
		{name: "extension fallback", contentType: "application/octet-stream", file: "doses.TSV", want: doseio.FormatCSV},
		{name: "json extension", file: "backup.json", want: doseio.FormatJSON},
		{name: "unknown", file: "doses.xlsx", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := doseio.DetectFormat(tt.contentType, tt.file)
			if tt.wantErr {
				assert.ErrorIs(t, err, doseio.ErrUnknownFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCSV(t *testing.T) {
	input := strings.Join([]string{
		"Date,Route,Ester,Dose mg,Tier,Notes,Color",
		"2026-03-01T08:00:00Z,IM,estradiol valerate,5,,left thigh,red",
		"",
		"2026-03-02 09:30,sl,E2,2,Strict,,",
		"# comment line",
		"2026-03-03,oral,cpa,12.5,,,",
	}, "\n")

	doses, err := doseio.ParseCSV(strings.NewReader(input), doseio.Options{})
	require.NoError(t, err)
	require.Len(t, doses, 3)

	assert.Equal(t, time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC), doses[0].AdministeredAt.Time())
	assert.Equal(t, "injection", doses[0].Route)
	assert.Equal(t, "EV", doses[0].Compound)
	require.NotNil(t, doses[0].RawMassMg)
	assert.InDelta(t, 5, *doses[0].RawMassMg, 1e-9)
	require.NotNil(t, doses[0].Notes)
	assert.Equal(t, "left thigh", *doses[0].Notes)

	assert.Equal(t, "sublingual", doses[1].Route)
	require.NotNil(t, doses[1].SublingualTier)
	assert.Equal(t, "strict", *doses[1].SublingualTier)
	assert.Nil(t, doses[1].Notes)

	assert.Equal(t, "CPA", doses[2].Compound)
	assert.True(t, doses[2].AdministeredAt.Time().Equal(time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)))
}

func TestParseCSV_SemicolonAndDecimalComma(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	input := "administered_at;route;compound;raw_mg;patch_mode;patch_rate_ug_per_day\n" +
		"01.03.2026 08:00;Pflaster;Estradiol;;rate;37,5\n" +
		"02.03.2026 08:00;Gel;Estradiol;1,5;;\n"

	doses, err := doseio.ParseCSV(strings.NewReader(input), doseio.Options{Location: loc})
	require.NoError(t, err)
	require.Len(t, doses, 2)

	assert.True(t, doses[0].AdministeredAt.Time().Equal(time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)))
	require.NotNil(t, doses[0].Patch)
	assert.Equal(t, "rate", doses[0].Patch.Mode)
	require.NotNil(t, doses[0].Patch.RateUGPerDay)
	assert.InDelta(t, 37.5, *doses[0].Patch.RateUGPerDay, 1e-9)

	assert.Nil(t, doses[1].Patch)
	require.NotNil(t, doses[1].RawMassMg)
	assert.InDelta(t, 1.5, *doses[1].RawMassMg, 1e-9)
}

func TestParseCSV_Windows1252(t *testing.T) {
	utf8Input := "time,route,compound,raw_mg,notes\n2026-03-01 08:00,injection,EV,5,Oberschenkel rechts ä\n"
	encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte(utf8Input))
	require.NoError(t, err)

	doses, err := doseio.ParseCSV(bytes.NewReader(encoded), doseio.Options{})
	require.NoError(t, err)
	require.Len(t, doses, 1)
	require.NotNil(t, doses[0].Notes)
	assert.Equal(t, "Oberschenkel rechts ä", *doses[0].Notes)
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		fields []string
	}{
		{name: "empty", input: "", fields: []string{"header"}},
		{name: "missing columns", input: "time,notes\n", fields: []string{"header", "header"}},
		{
			name:   "bad row values",
			input:  "time,route,compound,raw_mg\nyesterday,im,EV,five\n2026-03-01,im,EV,5\n,oral,E2,2\n",
			fields: []string{"rows[0].administered_at", "rows[0].raw_mg", "rows[2].administered_at"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := doseio.ParseCSV(strings.NewReader(tt.input), doseio.Options{})

			var parseErr *doseio.ParseError
			require.ErrorAs(t, err, &parseErr)
			var fields []string
			for _, e := range parseErr.Errors {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.fields, fields)
		})
	}
}

func TestParseJSON(t *testing.T) {
	t.Run("array", func(t *testing.T) {
		input := `[{"administeredAt":"2026-03-01T08:00:00Z","route":"IM","compound":"Estradiol Valerate","rawMassMg":5}]`
		doses, err := doseio.ParseJSON(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, doses, 1)
		assert.Equal(t, "injection", doses[0].Route)
		assert.Equal(t, "EV", doses[0].Compound)
	})

	t.Run("wrapped", func(t *testing.T) {
		input := ` {"doses":[{"administeredAt":"2026-03-01T08:00:00Z","route":"patch","compound":"E2","patch":{"rateUgPerDay":50}}]}`
		doses, err := doseio.ParseJSON(strings.NewReader(input))
		require.NoError(t, err)
		require.Len(t, doses, 1)
		require.NotNil(t, doses[0].Patch)
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := doseio.ParseJSON(strings.NewReader(`[{"administeredAt":"yesterday"}]`))
		var parseErr *doseio.ParseError
		require.ErrorAs(t, err, &parseErr)
		assert.Equal(t, "body", parseErr.Errors[0].Field)
	})
}

func TestParse_TooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), doseio.MaxInputBytes+1)
	_, err := doseio.Parse(bytes.NewReader(big), doseio.FormatCSV, doseio.Options{})
	assert.ErrorIs(t, err, doseio.ErrTooLarge)

	_, err = doseio.Parse(strings.NewReader("[]"), doseio.Format("xml"), doseio.Options{})
	assert.ErrorIs(t, err, doseio.ErrUnknownFormat)
}
