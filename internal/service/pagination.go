package service

import "github.com/noah-isme/tutorhub-api/internal/models"

const defaultPageSize = 20

// paginationFor mirrors the repository paging defaults so metadata matches the rows returned.
func paginationFor(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = defaultPageSize
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
