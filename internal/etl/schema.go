package etl

import (
	"strconv"

	"github.com/yungbote/marketlake/internal/dataset"
	"github.com/yungbote/marketlake/internal/domain/catalog"
)

var CategorySchema = func() dataset.Schema {
	s := dataset.Schema{
		{Name: "category_id", Type: dataset.TypeInt},
		{Name: "category_name", Type: dataset.TypeString},
		{Name: "category_path_root", Type: dataset.TypeString},
		{Name: "category_search_path", Type: dataset.TypeString},
		{Name: "parent_id", Type: dataset.TypeInt},
		{Name: "category_hierarchy", Type: dataset.TypeString},
		{Name: "category_hierarchy_depth", Type: dataset.TypeInt},
	}
	for i := 0; i < catalog.HierarchyLevels; i++ {
		s = append(s, dataset.Column{Name: levelColumn(i), Type: dataset.TypeString})
	}
	return s
}()

var BronzeProductSchema = dataset.Schema{
	{Name: "date", Type: dataset.TypeDate},
	{Name: "product_id", Type: dataset.TypeString},
	{Name: "category_id", Type: dataset.TypeInt},
	{Name: "user_id", Type: dataset.TypeString},
	{Name: "created_at", Type: dataset.TypeString},
	{Name: "price", Type: dataset.TypeFloat},
	{Name: "currency", Type: dataset.TypeString},
	{Name: "title", Type: dataset.TypeString},
	{Name: "description", Type: dataset.TypeString},
	{Name: "web_slug", Type: dataset.TypeString},
	{Name: "country_code", Type: dataset.TypeString},
	{Name: "city", Type: dataset.TypeString},
	{Name: "postal_code", Type: dataset.TypeString},
}

var SilverProductSchema = dataset.Schema{
	{Name: "date", Type: dataset.TypeDate},
	{Name: "product_id", Type: dataset.TypeString},
	{Name: "user_id", Type: dataset.TypeString},
	{Name: "category_id", Type: dataset.TypeInt},
	{Name: "created_at", Type: dataset.TypeString},
	{Name: "title", Type: dataset.TypeString},
	{Name: "web_slug", Type: dataset.TypeString},
	{Name: "category_name", Type: dataset.TypeString},
	{Name: "category_hierarchy", Type: dataset.TypeString},
	{Name: "price", Type: dataset.TypeFloat},
	{Name: "currency", Type: dataset.TypeString},
	{Name: "country_code", Type: dataset.TypeString},
	{Name: "city", Type: dataset.TypeString},
	{Name: "postal_code", Type: dataset.TypeString},
	{Name: "days_since_creation", Type: dataset.TypeInt},
}

func levelColumn(i int) string { return "category_hierarchy_" + strconv.Itoa(i) }
