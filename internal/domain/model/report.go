// Пакет model — доменные модели Report Module.
// Report — маппинг таблицы reports, Photo — report_photos,
// CreatorInfo — денормализованная сводка об авторе (actors).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unit — единица измерения количества.
type Unit string

const (
	UnitKilogram   Unit = "mass-kg"
	UnitGram       Unit = "mass-g"
	UnitLitre      Unit = "volume-l"
	UnitMillilitre Unit = "volume-ml"
	UnitPiece      Unit = "count-piece"
)

// IsValid проверяет принадлежность единицы к фиксированному набору.
func (u Unit) IsValid() bool {
	switch u {
	case UnitKilogram, UnitGram, UnitLitre, UnitMillilitre, UnitPiece:
		return true
	default:
		return false
	}
}

// Status — статус жизненного цикла отчёта.
type Status string

const (
	// StatusSubmitted — отчёт создан и ожидает рассмотрения
	StatusSubmitted Status = "submitted"
	// StatusInReview — отчёт взят в работу
	StatusInReview Status = "in_review"
	// StatusClosed — отчёт закрыт (одобрен или отклонён)
	StatusClosed Status = "closed"
)

// Outcome — итог рассмотрения закрытого отчёта.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

// ShelfLifeLayout — формат даты срока годности.
const ShelfLifeLayout = "2006-01-02"

// ReportFields — редактируемые поля отчёта.
// Используются при создании и при слиянии патча в approve.
type ReportFields struct {
	Name          string
	Description   *string
	Quantity      decimal.Decimal
	Unit          Unit
	Price         decimal.NullDecimal
	PickupAddress string
	ShelfLife     string
}

// Report — отчёт о продукте, доступном для спасения.
type Report struct {
	ID             int64               `json:"id"`
	Name           string              `json:"name"`
	Description    *string             `json:"description"`
	Quantity       decimal.Decimal     `json:"quantity"`
	Unit           Unit                `json:"unit"`
	Price          decimal.NullDecimal `json:"price"`
	PickupAddress  string              `json:"pickup_address"`
	ShelfLife      string              `json:"shelf_life"`
	Status         Status              `json:"status"`
	Outcome        *Outcome            `json:"outcome"`
	OutcomeMessage *string             `json:"outcome_message"`
	CreatorID      int64               `json:"creator_id"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`

	// Creator и Photos заполняются только в составном представлении (getById).
	Creator *CreatorInfo `json:"creator,omitempty"`
	Photos  []Photo      `json:"photos,omitempty"`
}

// Fields возвращает редактируемые поля отчёта.
func (r *Report) Fields() ReportFields {
	return ReportFields{
		Name:          r.Name,
		Description:   r.Description,
		Quantity:      r.Quantity,
		Unit:          r.Unit,
		Price:         r.Price,
		PickupAddress: r.PickupAddress,
		ShelfLife:     r.ShelfLife,
	}
}

// IsClosed сообщает, находится ли отчёт в терминальном статусе.
func (r *Report) IsClosed() bool {
	return r.Status == StatusClosed
}

// Photo — нормализованная фотография отчёта.
type Photo struct {
	ID               int64     `json:"id"`
	ReportID         int64     `json:"report_id"`
	StoredFilename   string    `json:"filename"`
	URL              string    `json:"url"`
	OriginalFilename *string   `json:"original_name"`
	MediaType        *string   `json:"media_type"`
	ByteSize         *int64    `json:"size"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewPhoto — данные для вставки строки report_photos.
type NewPhoto struct {
	StoredFilename   string
	OriginalFilename string
	MediaType        string
	ByteSize         int64
}

// CreatorInfo — сводка об авторе отчёта.
type CreatorInfo struct {
	ID        int64   `json:"id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Role      *string `json:"role"`
}

// Actor — участник системы, на которого ссылается reports.creator_id.
type Actor struct {
	ID        int64
	Subject   string
	FirstName string
	LastName  string
	Role      string
}
