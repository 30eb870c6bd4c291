package pipeline

// Job names understood by the job runtime. Both executors dispatch on these.
const (
	JobRawDownloadCategories      = "raw_download_categories"
	JobBronzeCategories           = "bronze_categories"
	JobRawDownloadProductCategory = "raw_download_product_category"
	JobBronzeProducts             = "bronze_products"
	JobSilverProducts             = "silver_products"
	JobGoldCategories             = "gold_categories"
	JobGoldLocations              = "gold_locations"
	JobGoldProducts               = "gold_products"
)

// CategoryRef is the slice of a flattened category a per-category download needs.
type CategoryRef struct {
	CategoryID         int64  `json:"category_id"`
	CategoryPathRoot   string `json:"category_path_root"`
	CategorySearchPath string `json:"category_search_path"`
}

// JobInput is the structured payload sent to a job. Day is optional and
// defaults to the current date on the executing side.
type JobInput struct {
	Day         string       `json:"day,omitempty"`
	Category    *CategoryRef `json:"category,omitempty"`
	MaxProducts int          `json:"max_products,omitempty"`
	WindowDays  int          `json:"window_days,omitempty"`
}

// JobOutput is the structured result a job returns.
type JobOutput struct {
	Day        string        `json:"day,omitempty"`
	Rows       int           `json:"rows"`
	Keys       []string      `json:"keys,omitempty"`
	Categories []CategoryRef `json:"categories,omitempty"`
}
