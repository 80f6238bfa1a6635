package inventory

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Item categories.
const (
	CategoryMedicine  = "Medicine"
	CategorySupply    = "Supply"
	CategoryEquipment = "Equipment"
)

var validCategories = map[string]bool{
	CategoryMedicine:  true,
	CategorySupply:    true,
	CategoryEquipment: true,
}

// Item maps to the inventory table.
type Item struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Category  string    `db:"category" json:"category"`
	Stock     int       `db:"stock" json:"stock"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Quantity is a stock count sent either as a JSON number or as a numeric
// string. Decoding never fails: Set records whether a value was present and
// Valid whether it was an integer.
type Quantity struct {
	Value int64
	Set   bool
	Valid bool
}

func (q *Quantity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*q = Quantity{}
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	q.Set = true
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return nil
		}
		q.parse(s)
		return nil
	}
	q.parse(string(b))
	return nil
}

// UnmarshalParam decodes form and query values.
func (q *Quantity) UnmarshalParam(param string) error {
	*q = Quantity{Set: true}
	q.parse(param)
	return nil
}

func (q *Quantity) parse(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		q.Set = false
		return
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		q.Value, q.Valid = n, true
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return
	}
	q.Value, q.Valid = int64(f), true
}

// CreateRequest is the body of POST /api/inventory.
type CreateRequest struct {
	Name     string   `json:"name" form:"name"`
	Category string   `json:"category" form:"category"`
	Stock    Quantity `json:"stock" form:"stock"`
}

// StockRequest is the body of PUT /api/inventory/:id/stock.
type StockRequest struct {
	AdditionalStock Quantity `json:"additionalStock" form:"additionalStock"`
}
