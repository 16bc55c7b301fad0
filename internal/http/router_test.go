package http

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/stretchr/testify/suite"

	"go-silk/internal/config"
	"go-silk/internal/silk"
)

type RouterTestSuite struct {
	suite.Suite
	e      *httpexpect.Expect
	server *httptest.Server
	store  *silk.MemoryStore
}

func (suite *RouterTestSuite) SetupTest() {
	cfg := config.Config{
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"https://ui.example.com"},
	}
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	suite.store = silk.NewMemoryStore()

	suite.server = httptest.NewServer(NewRouter(cfg, log, silk.NewRecorder(suite.store, log), nil))
	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *RouterTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *RouterTestSuite) TestProbes() {
	suite.e.GET("/healthz").
		Expect().
		Status(http.StatusOK).
		Text().IsEqual("ok")
	suite.e.GET("/readyz").
		Expect().
		Status(http.StatusOK).
		Text().IsEqual("ready")
	suite.e.POST("/healthz").
		Expect().
		Status(http.StatusMethodNotAllowed)
}

func (suite *RouterTestSuite) TestExpvar() {
	suite.e.GET("/healthz").Expect().Status(http.StatusOK)

	obj := suite.e.GET("/debug/vars").
		Expect().
		Status(http.StatusOK).
		JSON().Object()
	obj.ContainsKey("requests_total")
	obj.ContainsKey("silk_recorded_queries_total")
	obj.Value("requests_total").Number().Gt(0)
}

func (suite *RouterTestSuite) TestRequestID() {
	suite.e.GET("/healthz").
		WithHeader("X-Request-Id", "abc-123").
		Expect().
		Header("X-Request-Id").IsEqual("abc-123")

	suite.e.GET("/healthz").
		Expect().
		Header("X-Request-Id").NotEmpty()
}

func (suite *RouterTestSuite) TestCORS() {
	suite.e.OPTIONS("/v1/requests").
		WithHeader("Origin", "https://ui.example.com").
		WithHeader("Access-Control-Request-Method", "GET").
		Expect().
		Header("Access-Control-Allow-Origin").IsEqual("https://ui.example.com")

	suite.e.GET("/v1/requests").
		WithHeader("Origin", "https://evil.example.com").
		Expect().
		Status(http.StatusOK).
		Header("Access-Control-Allow-Origin").IsEmpty()
}

func (suite *RouterTestSuite) TestAPIRoutes() {
	rec := silk.NewRecorder(suite.store, nil)
	req, err := rec.StartRequest(context.Background(), silk.RequestStart{Method: "GET", Path: "/x", StartTime: time.Now()})
	suite.Require().NoError(err)

	suite.e.GET("/v1/requests").
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("items").Array().Length().IsEqual(1)
	suite.e.GET("/v1/requests/" + req.ID).
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("num_sql_queries").Number().IsEqual(0)
	suite.e.GET("/v1/unknown").
		Expect().
		Status(http.StatusNotFound)
}

func TestRouterTestSuite(t *testing.T) {
	suite.Run(t, new(RouterTestSuite))
}
