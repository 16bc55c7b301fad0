package silk

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const joinProfileQuery = "JOIN silk_profile_query ON silk_profile_query.sql_query_id = silk_sql_query.id"

// Repository is the gorm backed Store.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate ensures the silk tables exist.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Request{}, &Response{}, &SQLQuery{}, &Profile{}, &ProfileQuery{})
}

// Atomic runs fn inside a database transaction.
func (r *Repository) Atomic(ctx context.Context, fn func(tx Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *Repository) CreateRequest(ctx context.Context, req *Request) error {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

func (r *Repository) UpdateRequest(ctx context.Context, req *Request) error {
	res := r.db.WithContext(ctx).Model(req).Select("*").Omit("id", "num_sql_queries").Updates(req)
	if res.Error != nil {
		return fmt.Errorf("update request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update request %s: %w", req.ID, ErrNotFound)
	}
	return nil
}

func (r *Repository) GetRequest(ctx context.Context, id string) (*Request, error) {
	var req Request
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, notFound(err))
	}
	return &req, nil
}

func (r *Repository) ListRequests(ctx context.Context, f RequestFilter) ([]Request, error) {
	q := r.db.WithContext(ctx).Model(&Request{})
	if f.Path != "" {
		q = q.Where("path = ?", f.Path)
	}
	if f.Method != "" {
		q = q.Where("method = ?", f.Method)
	}
	if !f.StartedBefore.IsZero() {
		q = q.Where("start_time < ?", f.StartedBefore)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	order := "start_time DESC"
	if f.OldestFirst {
		order = "start_time ASC"
	}
	var out []Request
	if err := q.Order(order).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return out, nil
}

func (r *Repository) CountRequests(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Request{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return n, nil
}

func (r *Repository) DeleteRequest(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Request{})
	if res.Error != nil {
		return fmt.Errorf("delete request: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete request %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) AdjustQueryCount(ctx context.Context, requestID string, delta int) error {
	res := r.db.WithContext(ctx).Model(&Request{}).Where("id = ?", requestID).
		UpdateColumn("num_sql_queries", gorm.Expr("num_sql_queries + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("adjust query count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("adjust query count %s: %w", requestID, ErrNotFound)
	}
	return nil
}

func (r *Repository) LinkResponse(ctx context.Context, requestID, responseID string) error {
	res := r.db.WithContext(ctx).Model(&Request{}).Where("id = ?", requestID).
		UpdateColumn("response_id", responseID)
	if res.Error != nil {
		return fmt.Errorf("link response: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("link response %s: %w", requestID, ErrNotFound)
	}
	return nil
}

func (r *Repository) CreateResponse(ctx context.Context, resp *Response) error {
	if err := r.db.WithContext(ctx).Create(resp).Error; err != nil {
		return fmt.Errorf("create response: %w", err)
	}
	return nil
}

func (r *Repository) UpdateResponse(ctx context.Context, resp *Response) error {
	res := r.db.WithContext(ctx).Model(resp).Select("*").Omit("id").Updates(resp)
	if res.Error != nil {
		return fmt.Errorf("update response: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update response %s: %w", resp.ID, ErrNotFound)
	}
	return nil
}

func (r *Repository) GetResponseByRequest(ctx context.Context, requestID string) (*Response, error) {
	var resp Response
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).First(&resp).Error; err != nil {
		return nil, fmt.Errorf("get response for %s: %w", requestID, notFound(err))
	}
	return &resp, nil
}

func (r *Repository) DeleteResponsesByRequest(ctx context.Context, requestID string) error {
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Delete(&Response{}).Error; err != nil {
		return fmt.Errorf("delete responses: %w", err)
	}
	return nil
}

func (r *Repository) CreateSQLQuery(ctx context.Context, q *SQLQuery) error {
	if err := r.db.WithContext(ctx).Create(q).Error; err != nil {
		return fmt.Errorf("create sql query: %w", err)
	}
	return nil
}

func (r *Repository) GetSQLQuery(ctx context.Context, id string) (*SQLQuery, error) {
	var q SQLQuery
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&q).Error; err != nil {
		return nil, fmt.Errorf("get sql query %s: %w", id, notFound(err))
	}
	return &q, nil
}

func (r *Repository) DeleteSQLQuery(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&SQLQuery{})
	if res.Error != nil {
		return fmt.Errorf("delete sql query: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete sql query %s: %w", id, ErrNotFound)
	}
	return nil
}

func (r *Repository) DeleteSQLQueriesByRequest(ctx context.Context, requestID string) error {
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Delete(&SQLQuery{}).Error; err != nil {
		return fmt.Errorf("delete sql queries: %w", err)
	}
	return nil
}

func (r *Repository) ListSQLQueriesByRequest(ctx context.Context, requestID string) ([]SQLQuery, error) {
	var out []SQLQuery
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Order("start_time").Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list sql queries: %w", err)
	}
	return out, nil
}

func (r *Repository) SumQueryTimeByRequest(ctx context.Context, requestID string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&SQLQuery{}).
		Select("COALESCE(SUM(time_taken), 0)").
		Where("request_id = ?", requestID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum query time: %w", err)
	}
	return total, nil
}

func (r *Repository) CreateProfile(ctx context.Context, p *Profile) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

func (r *Repository) UpdateProfile(ctx context.Context, p *Profile) error {
	res := r.db.WithContext(ctx).Model(p).Select("*").Omit("id").Updates(p)
	if res.Error != nil {
		return fmt.Errorf("update profile: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update profile %s: %w", p.ID, ErrNotFound)
	}
	return nil
}

func (r *Repository) GetProfile(ctx context.Context, id string) (*Profile, error) {
	var p Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, fmt.Errorf("get profile %s: %w", id, notFound(err))
	}
	return &p, nil
}

func (r *Repository) ListProfilesByRequest(ctx context.Context, requestID string) ([]Profile, error) {
	var out []Profile
	err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Order("start_time").Order("id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	return out, nil
}

func (r *Repository) DeleteProfilesByRequest(ctx context.Context, requestID string) error {
	if err := r.db.WithContext(ctx).Where("request_id = ?", requestID).Delete(&Profile{}).Error; err != nil {
		return fmt.Errorf("delete profiles: %w", err)
	}
	return nil
}

func (r *Repository) LinkQuery(ctx context.Context, profileID, queryID string) error {
	link := ProfileQuery{ProfileID: profileID, SQLQueryID: queryID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
		return fmt.Errorf("link query: %w", err)
	}
	return nil
}

func (r *Repository) UnlinkQuery(ctx context.Context, queryID string) error {
	if err := r.db.WithContext(ctx).Where("sql_query_id = ?", queryID).Delete(&ProfileQuery{}).Error; err != nil {
		return fmt.Errorf("unlink query: %w", err)
	}
	return nil
}

func (r *Repository) UnlinkProfile(ctx context.Context, profileID string) error {
	if err := r.db.WithContext(ctx).Where("profile_id = ?", profileID).Delete(&ProfileQuery{}).Error; err != nil {
		return fmt.Errorf("unlink profile: %w", err)
	}
	return nil
}

func (r *Repository) ListSQLQueriesByProfile(ctx context.Context, profileID string) ([]SQLQuery, error) {
	var out []SQLQuery
	err := r.db.WithContext(ctx).
		Joins(joinProfileQuery).
		Where("silk_profile_query.profile_id = ?", profileID).
		Order("silk_sql_query.start_time").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list profile queries: %w", err)
	}
	return out, nil
}

func (r *Repository) SumQueryTimeByProfile(ctx context.Context, profileID string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&SQLQuery{}).
		Joins(joinProfileQuery).
		Select("COALESCE(SUM(silk_sql_query.time_taken), 0)").
		Where("silk_profile_query.profile_id = ?", profileID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum profile query time: %w", err)
	}
	return total, nil
}
