package silk

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"go-silk/internal/sqlheur"
)

// Request is one recorded inbound HTTP request.
type Request struct {
	ID                   string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	StatusCode           *int       `gorm:"column:status_code" json:"status_code"`
	Path                 string     `gorm:"column:path;type:text;index;not null" json:"path"`
	QueryParams          string     `gorm:"column:query_params;type:text;not null" json:"query_params"`
	RawBody              string     `gorm:"column:raw_body;type:text;not null" json:"raw_body"`
	Body                 string     `gorm:"column:body;type:text;not null" json:"body"`
	Method               string     `gorm:"column:method;type:varchar(10);not null" json:"method"`
	StartTime            time.Time  `gorm:"column:start_time;index;not null" json:"start_time"`
	EndTime              *time.Time `gorm:"column:end_time" json:"end_time"`
	TimeTaken            *float64   `gorm:"column:time_taken" json:"time_taken"`
	ViewName             string     `gorm:"column:view_name;type:text" json:"view_name"`
	EncodedHeaders       string     `gorm:"column:encoded_headers;type:text;not null" json:"-"`
	MetaTime             *float64   `gorm:"column:meta_time" json:"meta_time"`
	MetaNumQueries       *int       `gorm:"column:meta_num_queries" json:"meta_num_queries"`
	MetaTimeSpentQueries *float64   `gorm:"column:meta_time_spent_queries" json:"meta_time_spent_queries"`
	Pyprofile            string     `gorm:"column:pyprofile;type:text" json:"pyprofile,omitempty"`
	NumSQLQueries        int        `gorm:"column:num_sql_queries;not null" json:"num_sql_queries"`
	ResponseID           *string    `gorm:"column:response_id;type:varchar(36)" json:"response_id"`
}

func (Request) TableName() string { return "silk_request" }

func (r *Request) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *Request) BeforeSave(tx *gorm.DB) error {
	r.touch()
	return nil
}

func (r *Request) touch() {
	r.TimeTaken = ElapsedMs(r.StartTime, r.EndTime)
}

// TotalMetaTime is the recorder's own overhead; missing parts count as zero.
func (r *Request) TotalMetaTime() float64 {
	var total float64
	if r.MetaTime != nil {
		total += *r.MetaTime
	}
	if r.MetaTimeSpentQueries != nil {
		total += *r.MetaTimeSpentQueries
	}
	return total
}

// Headers decodes the stored request headers.
func (r *Request) Headers() (Headers, error) {
	return DecodeHeaders(r.EncodedHeaders)
}

func (r *Request) ContentType() (string, bool, error) {
	h, err := r.Headers()
	if err != nil {
		return "", false, err
	}
	ct, ok := h.ContentType()
	return ct, ok, nil
}

// Response is the response paired with a Request.
type Response struct {
	ID             string `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	RequestID      string `gorm:"column:request_id;type:varchar(36);index;not null" json:"request_id"`
	StatusCode     *int   `gorm:"column:status_code" json:"status_code"`
	RawBody        string `gorm:"column:raw_body;type:text;not null" json:"raw_body"`
	Body           string `gorm:"column:body;type:text;not null" json:"body"`
	EncodedHeaders string `gorm:"column:encoded_headers;type:text;not null" json:"-"`
}

func (Response) TableName() string { return "silk_response" }

func (r *Response) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func (r *Response) Headers() (Headers, error) {
	return DecodeHeaders(r.EncodedHeaders)
}

func (r *Response) ContentType() (string, bool, error) {
	h, err := r.Headers()
	if err != nil {
		return "", false, err
	}
	ct, ok := h.ContentType()
	return ct, ok, nil
}

// SQLQuery is one statement executed while serving a request.
type SQLQuery struct {
	ID        string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Query     string     `gorm:"column:query;type:text;not null" json:"query"`
	StartTime time.Time  `gorm:"column:start_time;index;not null" json:"start_time"`
	EndTime   *time.Time `gorm:"column:end_time" json:"end_time"`
	TimeTaken *float64   `gorm:"column:time_taken" json:"time_taken"`
	RequestID *string    `gorm:"column:request_id;type:varchar(36);index" json:"request_id"`
	Traceback string     `gorm:"column:traceback;type:text;not null" json:"traceback"`
}

func (SQLQuery) TableName() string { return "silk_sql_query" }

func (q *SQLQuery) BeforeCreate(tx *gorm.DB) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	return nil
}

func (q *SQLQuery) BeforeSave(tx *gorm.DB) error {
	q.touch()
	return nil
}

func (q *SQLQuery) touch() {
	q.TimeTaken = ElapsedMs(q.StartTime, q.EndTime)
}

// TracebackLinesOnly keeps lines 0, 2, 4... of the traceback: the file/line markers
// of a traceback that alternates location and source lines.
func (q *SQLQuery) TracebackLinesOnly() string {
	if q.Traceback == "" {
		return ""
	}
	lines := strings.Split(q.Traceback, "\n")
	kept := make([]string, 0, (len(lines)+1)/2)
	for i := 0; i < len(lines); i += 2 {
		kept = append(kept, lines[i])
	}
	return strings.Join(kept, "\n")
}

func (q *SQLQuery) FormattedQuery() string { return sqlheur.Format(q.Query) }

func (q *SQLQuery) NumJoins() int { return sqlheur.Default.NumJoins(q.Query) }

func (q *SQLQuery) TablesInvolved() []string { return sqlheur.Default.TablesInvolved(q.Query) }

// Profile is a named timing span: a function call when FuncName is set, a context block otherwise.
type Profile struct {
	ID              string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Name            string     `gorm:"column:name;type:text;not null" json:"name"`
	StartTime       time.Time  `gorm:"column:start_time;index;not null" json:"start_time"`
	EndTime         *time.Time `gorm:"column:end_time" json:"end_time"`
	TimeTaken       *float64   `gorm:"column:time_taken" json:"time_taken"`
	RequestID       *string    `gorm:"column:request_id;type:varchar(36);index" json:"request_id"`
	FilePath        string     `gorm:"column:file_path;type:text;not null" json:"file_path"`
	LineNum         *int       `gorm:"column:line_num" json:"line_num"`
	EndLineNum      *int       `gorm:"column:end_line_num" json:"end_line_num"`
	FuncName        *string    `gorm:"column:func_name;type:text" json:"func_name"`
	ExceptionRaised bool       `gorm:"column:exception_raised;not null" json:"exception_raised"`
	Dynamic         bool       `gorm:"column:dynamic;not null" json:"dynamic"`
}

func (Profile) TableName() string { return "silk_profile" }

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

func (p *Profile) BeforeSave(tx *gorm.DB) error {
	p.touch()
	return nil
}

func (p *Profile) touch() {
	p.TimeTaken = ElapsedMs(p.StartTime, p.EndTime)
}

func (p *Profile) IsFunctionProfile() bool { return p.FuncName != nil }

func (p *Profile) IsContextProfile() bool { return p.FuncName == nil }

// ProfileQuery links a profile to a query attributed to it.
type ProfileQuery struct {
	ProfileID  string `gorm:"column:profile_id;type:varchar(36);primaryKey"`
	SQLQueryID string `gorm:"column:sql_query_id;type:varchar(36);primaryKey;index"`
}

func (ProfileQuery) TableName() string { return "silk_profile_query" }
