package observability

import (
	"expvar"
)

var (
	RequestsTotal       = expvar.NewInt("requests_total")
	RequestErrorsTotal  = expvar.NewInt("request_errors_total")
	RecordedRequests    = expvar.NewInt("silk_recorded_requests_total")
	RecordedQueries     = expvar.NewInt("silk_recorded_queries_total")
	RecordedProfiles    = expvar.NewInt("silk_recorded_profiles_total")
	RecorderErrorsTotal = expvar.NewInt("silk_recorder_errors_total")
)

func IncRequests() {
	RequestsTotal.Add(1)
}

func IncRequestErrors() {
	RequestErrorsTotal.Add(1)
}

func IncRecordedRequests() {
	RecordedRequests.Add(1)
}

func IncRecordedQueries() {
	RecordedQueries.Add(1)
}

func IncRecordedProfiles() {
	RecordedProfiles.Add(1)
}

func IncRecorderErrors() {
	RecorderErrorsTotal.Add(1)
}
