package utils

import "github.com/wso2/consent-core-service/internal/models"

// CalculatePaginationMetadata builds the metadata block for a paginated
// search response
func CalculatePaginationMetadata(total, limit, offset int) models.PaginationMetadata {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}

	return models.PaginationMetadata{
		Total:      total,
		Limit:      limit,
		Offset:     offset,
		HasMore:    offset+limit < total,
		TotalPages: totalPages,
	}
}
