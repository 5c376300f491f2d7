package template

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

// knownKeys maps the catalog's Chinese feature names to their canonical
// storage keys. The table mirrors the relational schema; unknown names
// fall through to slugging and then hashing in StorageKey.
var knownKeys = map[string]string{
	// pottery
	"陶土种类":   "clay_type",
	"陶土纯洁程度": "clay_purity",
	"陶土细腻程度": "clay_fineness",
	"掺杂物":    "mixed_materials",
	"硬度":     "hardness",
	"颜色":     "color",
	"表面处理":   "surface_treatment",
	"基本器型":   "basic_shape",
	"器型部位特征": "shape_features",
	"器物组合":   "vessel_combination",
	"基本尺寸":   "dimensions",
	"器物功能":   "function",
	"成型工艺":   "forming_technique",
	"修整技术":   "finishing_technique",
	"装饰手法":   "decoration_method",
	"纹饰类型":   "decoration_type",
	"烧成温度":   "firing_temperature",
	"人工物品编号": "artifact_code",
	"制作活动":   "production_activity",
	"制作者":    "maker",
	"制作年代":   "production_date",
	"制作地点":   "production_location",
	"原始出土地点": "excavation_location",
	"发掘活动":   "excavation_activity",
	"出土墓葬":   "found_in_tomb",
	"保存状况":   "preservation_status",
	"完整程度":   "completeness",
	"高度":     "height",
	"器高":     "height",
	"通高":     "height",
	"口径":     "diameter",
	"直径":     "diameter",
	"腹径":     "diameter",
	"底径":     "diameter",
	"量度信息":   "measurements",

	// excavation position breakdown
	"所在墓地":  "location_site",
	"所在遗址":  "location_site",
	"墓葬编号":  "found_in_tomb",
	"层位":    "location_layer",
	"层位信息":  "location_layer",
	"其他单位":  "location_unit",
	"灰坑编号":  "location_unit",
	"出土区域":  "ex_region",
	"出土单位":  "ex_unit",
	"出土层位":  "ex_layer",

	// jade
	"一级分类":           "category_level1",
	"二级分类":           "category_level2",
	"三级分类":           "category_level3",
	"器型单元":           "shape_unit",
	"形状描述":           "shape_description",
	"整体形态描述":         "overall_description",
	"纹饰单元":           "decoration_unit",
	"纹饰单元(按图案题材分类)":  "decoration_unit",
	"纹饰主题":           "decoration_theme",
	"纹饰描述":           "decoration_description",
	"工艺特征单元":         "craft_unit",
	"工艺特征单元(按制作痕迹分类)": "craft_unit",
	"切割工艺":           "cutting_technique",
	"钻孔工艺":           "drilling_technique",
	"雕刻工艺":           "carving_technique",
	"装饰工艺":           "decoration_craft",
	"材质单元":           "jade_type",
	"玉料类型":           "jade_type",
	"玉料质地":           "jade_quality",
	"玉料颜色":           "jade_color",
	"透明度":            "transparency",
	"沁色单元":           "surface_condition",
	"表面状况":           "surface_condition",
	"尺寸":             "dimensions",
	"长度":             "length",
	"长":              "length",
	"通长":             "length",
	"宽度":             "width",
	"宽":              "width",
	"厚度":             "thickness",
	"壁厚":             "thickness",
	"器壁厚度":           "thickness",
	"厚":              "thickness",
	"孔径":             "hole_diameter",
	"重量":             "weight",
	"使用方式":           "usage",
	"制作工艺":           "production_technique",

	// sites
	"遗址编号":      "site_code",
	"遗址名称":      "site_name",
	"遗址别名":      "site_alias",
	"遗址类型":      "site_type",
	"地理位置":      "current_location",
	"现存地点":      "current_location",
	"遗址位置":      "current_location",
	"遗址当前位置":    "current_location",
	"所在地":       "current_location",
	"地理坐标":      "geographic_coordinates",
	"位置地理数据":    "geographic_coordinates",
	"遗址空间数据":    "spatial_data",
	"海拔":        "elevation",
	"遗址面积":      "total_area",
	"总面积":       "total_area",
	"发掘面积":      "excavated_area",
	"文化属性":      "culture_name",
	"所属文化":      "culture_name",
	"所属年代":      "absolute_dating",
	"保护级别":      "protection_level",
	"自然环境":      "description",
	"遗址描述":      "description",
	"遗址内子区域":    "site_sub_zone",
	"子区域编号或名称":  "sub_zone_name",
	"子区域位置描述":   "sub_zone_location",
	"子区域内具体单位":  "sub_zone_unit",
	"所属子区域":     "parent_sub_zone",

	// periods
	"时期编号":    "period_code",
	"时期名称":    "period_name",
	"时期/期别":   "period_name",
	"时期别名":    "period_alias",
	"起始时间":    "time_span_start",
	"结束时间":    "time_span_end",
	"绝对年代":    "absolute_dating",
	"相对年代":    "relative_dating",
	"发展阶段":    "development_stage",
	"阶段序列":    "phase_sequence",
	"时期顺序":    "phase_sequence",
	"时期特征":    "characteristics",
	"代表性文物":   "representative_artifacts",
	"历史背景朝代":  "historical_era",
	"细分时期划分":  "sub_period",
	"物理地层归属":  "stratigraphic_layer",
}

// StorageKey converts a Chinese feature name to its storage key.
// Known names resolve through the table above; anything else is slugged
// (punctuation stripped, lowercased, spaces to underscores), and names
// that slug to nothing usable get a stable hash-derived key. The result
// depends only on the input.
func StorageKey(nameCN string) string {
	name := strings.TrimSpace(nameCN)
	if name == "" {
		return ""
	}
	if key, ok := knownKeys[name]; ok {
		return key
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	slug := strings.Trim(b.String(), "_")

	if slug == "" || isAllDigits(slug) {
		h := fnv.New32a()
		h.Write([]byte(name))
		return fmt.Sprintf("field_%04d", h.Sum32()%10000)
	}
	return slug
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
