package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/bigkaa/foodsalvage/report-module/internal/domain/model"
)

// reportColumns — столбцы reports для SELECT-запросов.
// Числовые поля читаются как текст, чтобы не терять точность NUMERIC.
const reportColumns = `r.id, r.name, r.description, r.quantity::text, r.unit, r.price::text,
	r.pickup_address, to_char(r.shelf_life, 'YYYY-MM-DD'), r.status, r.outcome,
	r.outcome_message, r.creator_id, r.created_at, r.updated_at`

// ListParams — параметры выборки списка отчётов.
type ListParams struct {
	// Status — фильтр по статусу (nil = без фильтра)
	Status *model.Status
	// Query — подстрока для поиска по name, description, pickup_address
	Query *string
	Limit  int
	Offset int
}

// ReportRepository — интерфейс доступа к отчётам и их фотографиям.
type ReportRepository interface {
	// Insert создаёт отчёт в статусе submitted и возвращает его id.
	Insert(ctx context.Context, f model.ReportFields, creatorID int64) (int64, error)
	// InsertPhoto добавляет фотографию к отчёту.
	InsertPhoto(ctx context.Context, reportID int64, p model.NewPhoto) error
	// GetByID возвращает заголовок отчёта со сводкой об авторе или ErrNotFound.
	GetByID(ctx context.Context, id int64) (*model.Report, error)
	// ListPhotos возвращает фотографии отчёта в порядке добавления.
	ListPhotos(ctx context.Context, reportID int64) ([]model.Photo, error)
	// List возвращает заголовки отчётов без фотографий.
	List(ctx context.Context, params ListParams) ([]*model.Report, error)
	// PhotoFilenames возвращает имена файлов фотографий отчёта.
	PhotoFilenames(ctx context.Context, reportID int64) ([]string, error)
	// Delete удаляет отчёт (фотографии — каскадно). Возвращает число удалённых строк.
	Delete(ctx context.Context, id int64) (int64, error)
	// MarkInReview переводит submitted → in_review. Возвращает число изменённых строк.
	MarkInReview(ctx context.Context, id int64) (int64, error)
	// Approve записывает поля и закрывает отчёт с outcome=approved.
	// guard — ожидаемое значение updated_at (nil — без проверки).
	Approve(ctx context.Context, id int64, f model.ReportFields, guard *time.Time) (int64, error)
	// Reject закрывает отчёт с outcome=rejected.
	Reject(ctx context.Context, id int64, message string, guard *time.Time) (int64, error)
	// ListClosedBefore возвращает id закрытых отчётов с updated_at <= cutoff.
	ListClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
	// CountByStatus возвращает количество отчётов в статусе.
	CountByStatus(ctx context.Context, status model.Status) (int64, error)
}

// reportRepo — реализация ReportRepository через pgx.
type reportRepo struct {
	db DBTX
}

// NewReportRepository создаёт репозиторий отчётов.
func NewReportRepository(db DBTX) ReportRepository {
	return &reportRepo{db: db}
}

// Insert создаёт отчёт. Если драйвер вернул NULL вместо id,
// id читается через LASTVAL() в той же сессии.
func (r *reportRepo) Insert(ctx context.Context, f model.ReportFields, creatorID int64) (int64, error) {
	query := `
		INSERT INTO reports (name, description, quantity, unit, price,
			pickup_address, shelf_life, status, creator_id)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6, $7::date, 'submitted', $8)
		RETURNING id`

	var id pgtype.Int8
	err := r.db.QueryRow(ctx, query,
		f.Name, f.Description, f.Quantity.String(), string(f.Unit), nullDecimalArg(f.Price),
		f.PickupAddress, f.ShelfLife, creatorID,
	).Scan(&id)
	if err != nil {
		return 0, wrapWriteError("создания отчёта", err)
	}
	if id.Valid {
		return id.Int64, nil
	}

	var last int64
	if err := r.db.QueryRow(ctx, `SELECT LASTVAL()`).Scan(&last); err != nil {
		return 0, fmt.Errorf("ошибка получения id отчёта: %w", err)
	}
	return last, nil
}

func (r *reportRepo) InsertPhoto(ctx context.Context, reportID int64, p model.NewPhoto) error {
	query := `
		INSERT INTO report_photos (report_id, stored_filename, original_filename, media_type, byte_size)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := r.db.Exec(ctx, query,
		reportID, p.StoredFilename, nullString(p.OriginalFilename), nullString(p.MediaType), p.ByteSize,
	); err != nil {
		return wrapWriteError("добавления фотографии", err)
	}
	return nil
}

// GetByID возвращает отчёт со сводкой об авторе или ErrNotFound.
func (r *reportRepo) GetByID(ctx context.Context, id int64) (*model.Report, error) {
	query := fmt.Sprintf(`
		SELECT %s, a.id, a.first_name, a.last_name, a.role
		FROM reports r
		LEFT JOIN actors a ON a.id = r.creator_id
		WHERE r.id = $1`, reportColumns)

	var (
		creatorID                   *int64
		firstName, lastName, roleNm *string
	)
	rep, err := scanReport(r.db.QueryRow(ctx, query, id), &creatorID, &firstName, &lastName, &roleNm)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения отчёта: %w", err)
	}
	if creatorID != nil {
		rep.Creator = &model.CreatorInfo{
			ID:        *creatorID,
			FirstName: firstName,
			LastName:  lastName,
			Role:      roleNm,
		}
	}
	return rep, nil
}

func (r *reportRepo) ListPhotos(ctx context.Context, reportID int64) ([]model.Photo, error) {
	query := `
		SELECT id, report_id, stored_filename, original_filename, media_type, byte_size, created_at
		FROM report_photos
		WHERE report_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения фотографий: %w", err)
	}
	defer rows.Close()

	photos := make([]model.Photo, 0)
	for rows.Next() {
		var p model.Photo
		if err := rows.Scan(
			&p.ID, &p.ReportID, &p.StoredFilename, &p.OriginalFilename,
			&p.MediaType, &p.ByteSize, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования фотографии: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации фотографий: %w", err)
	}
	return photos, nil
}

// List возвращает отчёты с фильтрами, сортировкой по дате создания и пагинацией.
func (r *reportRepo) List(ctx context.Context, params ListParams) ([]*model.Report, error) {
	where, args := buildListWhere(params, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(
		`SELECT %s FROM reports r %s ORDER BY r.created_at DESC, r.id DESC LIMIT $%d OFFSET $%d`,
		reportColumns, where, argNum, argNum+1,
	)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка отчётов: %w", err)
	}
	defer rows.Close()

	result := make([]*model.Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования отчёта: %w", err)
		}
		result = append(result, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

func (r *reportRepo) PhotoFilenames(ctx context.Context, reportID int64) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT stored_filename FROM report_photos WHERE report_id = $1 ORDER BY id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения имён файлов: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования имён файлов: %w", err)
	}
	return names, nil
}

func (r *reportRepo) Delete(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM reports WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("ошибка удаления отчёта: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkInReview — условный переход submitted → in_review.
// Повторный вызов не меняет строку и не считается ошибкой.
func (r *reportRepo) MarkInReview(ctx context.Context, id int64) (int64, error) {
	query := `
		UPDATE reports
		SET status = 'in_review', updated_at = now()
		WHERE id = $1 AND status = 'submitted'`

	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("ошибка перевода отчёта в in_review: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *reportRepo) Approve(ctx context.Context, id int64, f model.ReportFields, guard *time.Time) (int64, error) {
	query := `
		UPDATE reports
		SET name = $2, description = $3, quantity = $4::numeric, unit = $5,
			price = $6::numeric, pickup_address = $7, shelf_life = $8::date,
			status = 'closed', outcome = 'approved', outcome_message = NULL,
			updated_at = now()
		WHERE id = $1
			AND status <> 'closed'
			AND ($9::timestamptz IS NULL OR updated_at = $9::timestamptz)`

	tag, err := r.db.Exec(ctx, query,
		id, f.Name, f.Description, f.Quantity.String(), string(f.Unit),
		nullDecimalArg(f.Price), f.PickupAddress, f.ShelfLife, guard,
	)
	if err != nil {
		return 0, wrapWriteError("одобрения отчёта", err)
	}
	return tag.RowsAffected(), nil
}

func (r *reportRepo) Reject(ctx context.Context, id int64, message string, guard *time.Time) (int64, error) {
	query := `
		UPDATE reports
		SET status = 'closed', outcome = 'rejected', outcome_message = $2,
			updated_at = now()
		WHERE id = $1
			AND status <> 'closed'
			AND ($3::timestamptz IS NULL OR updated_at = $3::timestamptz)`

	tag, err := r.db.Exec(ctx, query, id, message, guard)
	if err != nil {
		return 0, wrapWriteError("отклонения отчёта", err)
	}
	return tag.RowsAffected(), nil
}

func (r *reportRepo) ListClosedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM reports WHERE status = 'closed' AND updated_at <= $1 ORDER BY id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки закрытых отчётов: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("ошибка сканирования id отчётов: %w", err)
	}
	return ids, nil
}

func (r *reportRepo) CountByStatus(ctx context.Context, status model.Status) (int64, error) {
	var n int64
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE status = $1`, string(status),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта отчётов (%s): %w", status, err)
	}
	return n, nil
}

// buildListWhere строит WHERE-условие и аргументы для списка отчётов.
// startArg — номер первого $-параметра.
func buildListWhere(params ListParams, startArg int) (whereClause string, args []any) {
	var conditions []string
	argNum := startArg

	if params.Status != nil && *params.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.status = $%d", argNum))
		args = append(args, string(*params.Status))
		argNum++
	}

	if params.Query != nil && strings.TrimSpace(*params.Query) != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(r.name ILIKE $%d OR r.description ILIKE $%d OR r.pickup_address ILIKE $%d)",
			argNum, argNum, argNum))
		args = append(args, "%"+escapeLike(strings.TrimSpace(*params.Query))+"%")
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

// escapeLike экранирует спецсимволы шаблона LIKE (обратный слэш — escape по умолчанию).
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// scanReport читает строку с reportColumns; extra — дополнительные столбцы после них.
func scanReport(row pgx.Row, extra ...any) (*model.Report, error) {
	rep := &model.Report{}
	var (
		quantity string
		price    *string
	)
	dest := []any{
		&rep.ID, &rep.Name, &rep.Description, &quantity, &rep.Unit, &price,
		&rep.PickupAddress, &rep.ShelfLife, &rep.Status, &rep.Outcome,
		&rep.OutcomeMessage, &rep.CreatorID, &rep.CreatedAt, &rep.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	q, err := decimal.NewFromString(quantity)
	if err != nil {
		return nil, fmt.Errorf("некорректное количество %q: %w", quantity, err)
	}
	rep.Quantity = q

	if price != nil {
		p, err := decimal.NewFromString(*price)
		if err != nil {
			return nil, fmt.Errorf("некорректная цена %q: %w", *price, err)
		}
		rep.Price = decimal.NewNullDecimal(p)
	}
	return rep, nil
}

// nullDecimalArg — аргумент NUMERIC для nullable-значения.
func nullDecimalArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

// nullString — пустая строка записывается как NULL.
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
