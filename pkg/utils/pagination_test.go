package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

func paramsFor(query string) PaginationParams {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return GetPaginationParams(e.NewContext(req, httptest.NewRecorder()))
}

func TestGetPaginationParams(t *testing.T) {
	assert.Equal(t, PaginationParams{Page: 1, PageSize: 20, Offset: 0}, paramsFor(""))
	assert.Equal(t, PaginationParams{Page: 3, PageSize: 5, Offset: 10}, paramsFor("page=3&limit=5"))
	assert.Equal(t, PaginationParams{Page: 1, PageSize: 20, Offset: 0}, paramsFor("page=-1&limit=500"))
}

func TestGetPaginationParams_HugePage(t *testing.T) {
	p := paramsFor("page=92233720368547760&limit=100")
	assert.Equal(t, maxPage, p.Page)
	assert.GreaterOrEqual(t, p.Offset, 0)

	start, end := p.Bounds(3)
	assert.Equal(t, 3, start)
	assert.Equal(t, 3, end)
}

func TestPaginationBounds(t *testing.T) {
	p := PaginationParams{Page: 2, PageSize: 5, Offset: 5}

	start, end := p.Bounds(12)
	assert.Equal(t, 5, start)
	assert.Equal(t, 10, end)

	start, end = p.Bounds(7)
	assert.Equal(t, 5, start)
	assert.Equal(t, 7, end)

	start, end = p.Bounds(3)
	assert.Equal(t, 3, start)
	assert.Equal(t, 3, end)

	start, end = PaginationParams{Page: 1, PageSize: 5, Offset: -10}.Bounds(7)
	assert.Equal(t, 0, start)
	assert.Equal(t, 5, end)
}
