// Package query turns generic list requests into bounded, whitelisted
// query plans that can be rendered as PostgreSQL or evaluated in memory.
package query

// Schema describes which fields of a resource may be sorted, filtered and
// searched, and the column each API field maps to. Only columns named here
// ever reach generated SQL.
type Schema struct {
	// IDColumn orders results when no valid sort is requested and breaks ties otherwise.
	IDColumn string
	// Sortable maps API field names to columns.
	Sortable map[string]string
	// Equality maps API field names to columns filtered by plain equality.
	Equality map[string]string
	// Nullable maps API field names to columns filtered by a NullableFilter.
	Nullable map[string]string
	// SearchColumn is matched case-insensitively by the search term. Empty disables search.
	SearchColumn string
}

// TaskSchema is the whitelist for the tasks table.
var TaskSchema = Schema{
	IDColumn: "id",
	Sortable: map[string]string{
		"id":        "id",
		"name":      "name",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	},
	Equality: map[string]string{
		"tenantId":  "tenant_id",
		"projectId": "project_id",
	},
	Nullable: map[string]string{
		"parentTaskId": "parent_task_id",
	},
	SearchColumn: "name",
}
