package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPagination_Clamps(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, PageSize: 20}, NewPagination(0, 0))
	assert.Equal(t, Pagination{Page: 3, PageSize: 100}, NewPagination(3, 500))
	assert.Equal(t, 40, NewPagination(3, 20).Offset())
}

func TestNewPagedResult(t *testing.T) {
	r := NewPagedResult([]int{1, 2}, 41, NewPagination(1, 20))
	assert.Equal(t, 3, r.TotalPages)

	empty := NewPagedResult[int](nil, 0, NewPagination(1, 20))
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.TotalPages)
}
