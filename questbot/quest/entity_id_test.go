package quest

import (
	"testing"

	"github.com/nonagon/questbot/questbot/database/models"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		kind    models.AggregateKind
		raw     string
		want    ID
		wantErr bool
	}{
		{
			name: "postal body without prefix",
			kind: models.KindQuest,
			raw:  "H3X1T7",
			want: "QUESH3X1T7",
		},
		{
			name: "full postal id",
			kind: models.KindQuest,
			raw:  "QUESH3X1T7",
			want: "QUESH3X1T7",
		},
		{
			name: "lowercase input is folded",
			kind: models.KindQuest,
			raw:  "quesh3x1t7",
			want: "QUESH3X1T7",
		},
		{
			name: "surrounding whitespace is trimmed",
			kind: models.KindUser,
			raw:  "  USERA2B4C6 ",
			want: "USERA2B4C6",
		},
		{
			name: "legacy numeric body",
			kind: models.KindQuest,
			raw:  "1042",
			want: "QUES1042",
		},
		{
			name: "full legacy id",
			kind: models.KindCharacter,
			raw:  "CHAR77",
			want: "CHAR77",
		},
		{
			name:    "empty input",
			kind:    models.KindQuest,
			raw:     "",
			wantErr: true,
		},
		{
			name:    "malformed body",
			kind:    models.KindQuest,
			raw:     "QUESHELLO!",
			wantErr: true,
		},
		{
			name:    "postal body with wrong alternation",
			kind:    models.KindQuest,
			raw:     "QUES1H3X1T",
			wantErr: true,
		},
		{
			name:    "mixed alnum that is neither format",
			kind:    models.KindSummary,
			raw:     "SUMMABC123",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseID(tt.kind, tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseID() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseID() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseIDWrongPrefix(t *testing.T) {
	// A USER-prefixed id handed to the quest kind is not stripped; the whole
	// string fails body validation instead of silently changing kind.
	if _, err := ParseID(models.KindQuest, "USERA2B4C6"); err == nil {
		t.Fatal("expected error for mismatched prefix, got nil")
	}
}

func TestIDAccessors(t *testing.T) {
	id := ID("QUESH3X1T7")
	if got := id.Prefix(); got != "QUES" {
		t.Errorf("Prefix() = %q, want QUES", got)
	}
	if got := id.Body(); got != "H3X1T7" {
		t.Errorf("Body() = %q, want H3X1T7", got)
	}
	if id.Legacy() {
		t.Error("postal id reported as legacy")
	}
	if got := id.Kind(); got != models.KindQuest {
		t.Errorf("Kind() = %q, want %q", got, models.KindQuest)
	}

	legacy := ID("CHAR1042")
	if !legacy.Legacy() {
		t.Error("numeric id not reported as legacy")
	}
	if got := legacy.Kind(); got != models.KindCharacter {
		t.Errorf("Kind() = %q, want %q", got, models.KindCharacter)
	}

	if got := ID("XXXX123456").Kind(); got != "" {
		t.Errorf("Kind() for unknown prefix = %q, want empty", got)
	}
}
