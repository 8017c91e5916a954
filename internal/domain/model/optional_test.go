package model

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestReportPatch_UnmarshalJSON(t *testing.T) {
	var p ReportPatch
	body := `{"name":"Rolls","description":null,"quantity":"2.5","price":1.2}`
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		t.Fatalf("Unmarshal() ошибка: %v", err)
	}

	if !p.Name.HasValue() || p.Name.Value != "Rolls" {
		t.Errorf("Name = %+v, ожидалось значение Rolls", p.Name)
	}
	if !p.Description.IsNull() {
		t.Errorf("Description = %+v, ожидался явный null", p.Description)
	}
	if !p.Quantity.HasValue() || !p.Quantity.Value.Equal(decimal.RequireFromString("2.5")) {
		t.Errorf("Quantity = %+v, ожидалось 2.5", p.Quantity)
	}
	if !p.Price.HasValue() || !p.Price.Value.Equal(decimal.RequireFromString("1.2")) {
		t.Errorf("Price = %+v, ожидалось 1.2", p.Price)
	}
	if p.Unit.Set || p.PickupAddress.Set || p.ShelfLife.Set {
		t.Error("отсутствующие поля не должны быть Set")
	}
}

func TestOptional_InvalidValue(t *testing.T) {
	var p ReportPatch
	if err := json.Unmarshal([]byte(`{"quantity":"abc"}`), &p); err == nil {
		t.Error("ожидалась ошибка для некорректного числа")
	}
}

func TestOptional_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Optional[string] `json:"a"`
		B Optional[string] `json:"b"`
		C Optional[int]    `json:"c"`
	}{A: Some("x"), B: Null[string]()})
	if err != nil {
		t.Fatalf("Marshal() ошибка: %v", err)
	}
	if string(data) != `{"a":"x","b":null,"c":null}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestOptional_UnmarshalOverwrites(t *testing.T) {
	o := Some("old")
	if err := json.Unmarshal([]byte(`null`), &o); err != nil {
		t.Fatalf("Unmarshal() ошибка: %v", err)
	}
	if o != Null[string]() {
		t.Errorf("после null: %+v, ожидался явный null без значения", o)
	}

	if err := json.Unmarshal([]byte(`"new"`), &o); err != nil {
		t.Fatalf("Unmarshal() ошибка: %v", err)
	}
	if o != Some("new") {
		t.Errorf("после значения: %+v, ожидалось new", o)
	}
}
