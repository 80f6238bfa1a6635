package inventory

import (
	"encoding/json"
	"testing"
)

func TestQuantity_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		in        string
		wantSet   bool
		wantValid bool
		wantValue int64
	}{
		{`{"q":5}`, true, true, 5},
		{`{"q":"12"}`, true, true, 12},
		{`{"q":" 7 "}`, true, true, 7},
		{`{"q":0}`, true, true, 0},
		{`{"q":-3}`, true, true, -3},
		{`{"q":4.0}`, true, true, 4},
		{`{"q":4.5}`, true, false, 0},
		{`{"q":"abc"}`, true, false, 0},
		{`{"q":true}`, true, false, 0},
		{`{"q":99999999999}`, true, false, 0},
		{`{"q":""}`, false, false, 0},
		{`{"q":null}`, false, false, 0},
		{`{}`, false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var body struct {
				Q Quantity `json:"q"`
			}
			if err := json.Unmarshal([]byte(tt.in), &body); err != nil {
				t.Fatalf("decode must not fail: %v", err)
			}
			if body.Q.Set != tt.wantSet || body.Q.Valid != tt.wantValid || body.Q.Value != tt.wantValue {
				t.Errorf("got %+v, want set=%v valid=%v value=%d", body.Q, tt.wantSet, tt.wantValid, tt.wantValue)
			}
		})
	}
}

func TestQuantity_UnmarshalParam(t *testing.T) {
	var q Quantity
	q.UnmarshalParam("25")
	if !q.Set || !q.Valid || q.Value != 25 {
		t.Errorf("unexpected quantity %+v", q)
	}
	q.UnmarshalParam("ten")
	if !q.Set || q.Valid {
		t.Errorf("expected set but invalid, got %+v", q)
	}
}
