package prompt

import (
	"encoding/json"
	"fmt"
)

type siteSynthesizer struct {
	fields string
}

func (s *siteSynthesizer) Extraction(text string, _ Context) string {
	return fmt.Sprintf(`# 考古遗址信息抽取任务

## 任务说明
你是一位专业的考古学家助手。请从给定的考古报告文本中，抽取遗址的基本信息、特征以及**内部结构（如分区、功能区、具体遗迹等）**。

## 抽取字段
1. **基本信息**（如果文本中没有相关信息，该字段可以为空）：
%s

2. **遗址结构 (structures)**:
请识别文本中提到的遗址内部结构单元（如"居住区"、"墓葬区"、"祭坛"、"I区"、"M1号墓地"等），并作为列表返回。
结构单元包括：
- 分区 (Zone/Region)
- 建筑基址 (Foundation)
- 墓地 (Cemetery)
- 祭祀台 (Altar)
- 其他重要功能区

## 输出格式
请以JSON格式输出，结构如下：
`+"```json"+`
{
  "site_name": "遗址名称",
  "site_type": "遗址类型",
  ...其他基本字段,
  "structures": [
    {
      "structure_name": "名称 (如 'I区', '瑶山祭坛')",
      "structure_type": "类型 (如 '分区', '祭坛', '墓地')",
      "parent_structure_name": "上级结构名称 (如果属于某个大区)",
      "description": "描述 (位置、功能等)"
    },
    ...
  ]
}
`+"```"+`

## 注意事项
1. 只抽取文本中明确提到的信息，不要推测
2. 数值类型的字段请提取具体数字
3. 遗址结构应该包含层级关系（如果文本提到了）
4. 保持专业术语的准确性

## 待抽取文本
%s

## 请开始抽取
`, s.fields, text)
}

type periodSynthesizer struct {
	fields string
}

func (s *periodSynthesizer) Extraction(text string, ctx Context) string {
	siteName := ctx.SiteName
	if siteName == "" {
		siteName = "该遗址"
	}
	return fmt.Sprintf(`# 考古时期信息抽取任务

## 任务说明
你是一位专业的考古学家助手。请从给定的考古报告文本中，抽取%s的时期划分和特征信息。

## 抽取字段
请抽取以下字段（如果文本中没有相关信息，该字段可以为空）：

%s

## 输出格式
请以JSON格式输出时期列表，每个时期是一个对象：
`+"```json"+`
[
  {
    "period_name": "时期名称",
    "time_span_start": "起始时间",
    "time_span_end": "结束时间",
    ...其他字段
  },
  ...
]
`+"```"+`

## 注意事项
1. 时期可能有多个，请全部识别
2. 注意时期的先后顺序和发展阶段
3. 提取代表性文物特征
4. 如果有绝对年代和相对年代，都要提取

## 待抽取文本
%s

## 请开始抽取
`, siteName, s.fields, text)
}

type potterySynthesizer struct {
	fields string
}

func (s *potterySynthesizer) Extraction(text string, ctx Context) string {
	return fmt.Sprintf(`# 陶器文物信息抽取任务

## 任务说明
你是一位专业的考古学家助手。请从给定的考古报告文本中，识别并抽取所有陶器文物的详细信息。

## 上下文信息
%s

## 抽取字段
请抽取以下字段。**重要：即使文本中没有提到某个字段，也必须在返回的JSON中包含该字段的Key，并将Value设为null，严禁省略Key。**

%s

## 输出格式
请以JSON格式输出陶器列表，每个陶器是一个对象：
`+"```json"+`
[
  {
    "artifact_code": "人工物品编号（如M1:1）",
    "subtype": "基本器型 (如 '罐', '豆', '壶')",
    "clay_type": "陶土种类 (如 '夹砂红陶', '泥质灰陶')",
    "color": "颜色 (通常包含在陶土或外观描述中)",
    "shape_features": "器型部位特征 (详细描述，如 '卷沿', '鼓腹')",
    "dimensions": "基本尺寸 (原文描述)",
    "height": 高度数值 (衍生自基本尺寸, cm),
    "diameter": 口径/直径数值 (衍生自基本尺寸, cm),
    "thickness": 壁厚数值 (衍生自基本尺寸, cm),
    "finishing_technique": "修整技术 (如 '磨光', '刮削')",
    "surface_treatment": "表面处理 (衍生自修整技术)",
    "decoration_method": "装饰手法 (如 '刻划', '彩绘')",
    "decoration_type": "纹饰类型 (如 '绳纹', '几何纹')",
    "excavation_location": "原始出土地点 (原文完整描述)",
    "ex_region": "出土区域/墓地 (如 '文家山墓地')",
    "ex_unit": "出土单位 (如 'M7', '七号墓')",
    "ex_layer": "出土层位 (如 '②层')",
    "found_in_tomb": "墓葬编号 (规范化的M号，如 'M7')",
    "location_unit": "其他遗迹单位 (如 'H1'灰坑)",
    "image_references": ["图1", "图版二:3"] (提取文中提到的关联图片编号),
    ...（必须包含上述"抽取字段"列表中的所有Key）
  },
  ...
]
`+"```"+`

## 注意事项
1. **结构完整性**: 返回的JSON对象必须包含模版定义的所有字段Key，缺失值设为null。
2. 每个陶器都要有唯一的artifact_code（文物编号）。
3. **尺寸提取**: 必须将尺寸描述拆分为具体数值。例如"高15cm" -> dimensions="高15cm", height=15。
4. **墓葬编号规范化**: 如果文中提到"六号墓"或"M6"，请统一在 output 中使用 "M6" 格式。
5. **图片引用提取**: 如果文中提到了关联图片，请将其提取到 image_references 列表中。
6. **语义理解**: 字段名称可能与文本描述不完全一致。请根据上下文理解含义。例如，"物件开口处直径"应提取为"口径"。
7. **位置拆解**: 必须将"原始出土地点"拆解为 region (墓地/区域), unit (单位/墓/坑), layer (层位)。
8. **排除非陶器**: 本任务**只抽取陶器**（Pottery/Ceramic）。严禁抽取玉器（Jade）、石器（Stone）、骨器、铜器等其他质地的文物。即便它们出现在同一墓葬中，也请忽略。

## 待抽取文本
%s

## 请开始抽取
`, contextBlock(ctx), s.fields, text)
}

type jadeSynthesizer struct {
	fields string
}

func (s *jadeSynthesizer) Extraction(text string, ctx Context) string {
	return fmt.Sprintf(`# 玉器文物信息抽取任务

## 任务说明
你是一位专业的考古学家助手。请从给定的考古报告文本中，识别并抽取所有玉器文物的详细信息。

## 上下文信息
%s

## 抽取字段
请抽取以下字段。**重要：必须严格对应模版定义的"文化特征单元"。部分字段需要进一步细分提取衍生信息，请在JSON中一并返回。**

%s

## 输出格式
请以JSON格式输出玉器列表，每个玉器是一个对象：
`+"```json"+`
[
  {
    "artifact_code": "人工物品编号（如M1:1）",
    "category_level1": "一级分类",
    "category_level2": "二级分类",
    "jade_type": "材质单元 (如 '透闪石软玉')",
    "jade_color": "颜色 (从材质单元中衍生/分离，如 '黄')",
    "jade_quality": "质地 (从材质单元中衍生，如 '细腻')",
    "dimensions": "量度信息 (原文描述)",
    "length": 长度数值 (衍生自量度信息, cm),
    "width": 宽度数值 (衍生自量度信息, cm),
    "thickness": 厚度数值 (衍生自量度信息, cm),
    "hole_diameter": 孔径数值 (衍生自量度信息, cm),
    "weight": 重量数值 (衍生自量度信息, g),
    "craft_unit": "工艺特征单元 (原文描述)",
    "cutting_technique": "切割工艺 (衍生自工艺特征)",
    "drilling_technique": "钻孔工艺 (衍生自工艺特征)",
    "carving_technique": "雕刻工艺 (衍生自工艺特征)",
    "decoration_unit": "纹饰单元 (原文描述)",
    "decoration_theme": "纹饰主题 (衍生自纹饰单元)",
    "function": "器物功能",
    "usage": "使用方式 (衍生自功能)",
    "excavation_location": "原始出土地点 (原文完整描述)",
    "ex_region": "出土区域/墓地 (如 '文家山墓地')",
    "ex_unit": "出土单位 (如 'M7', '七号墓')",
    "ex_layer": "出土层位 (如 '②层')",
    "found_in_tomb": "墓葬编号 (规范化的M号，如 'M7')",
    "image_references": ["图1", "图版二:3"] (提取文中提到的关联图片编号),
    ...（包含列表中的其他所有字段）
  },
  ...
]
`+"```"+`

## 注意事项
1. **结构完整性**: 返回的JSON对象必须包含模版定义的所有字段Key。
2. **主从关系**: 请注意区分"主字段"（如工艺特征单元）和"衍生字段"（如切割工艺）。主字段存储概括性描述，衍生字段存储细分类型。
3. **尺寸提取**: dimensions 字段存储完整描述，同时必须提取 length, width 等数值到对应衍生字段。
4. **墓葬编号规范化**: 统一使用 "M+数字" 格式（如 M12）。
5. **语义理解**: 字段名称可能与文本描述不完全一致。请根据上下文理解含义。
6. **位置拆解**: 必须将"原始出土地点"拆解为 region (墓地/区域), unit (单位/墓/坑), layer (层位)。
7. **排除非玉器**: 本任务**只抽取玉器**（Jade）。严禁抽取陶器（Pottery）、石器（Stone）、骨器、铜器等其他质地的文物。

## 待抽取文本
%s

## 请开始抽取
`, contextBlock(ctx), s.fields, text)
}

// MergePrompt asks the LLM to merge partial extractions of one entity
// kind by artifact code, keeping the most complete field values.
func MergePrompt(kind EntityKind, partials []map[string]any) string {
	data, err := json.MarshalIndent(partials, "", "  ")
	if err != nil {
		data = []byte("[]")
	}
	label := kind.LabelCN()
	return fmt.Sprintf(`# %s信息合并任务

## 任务说明
以下是从不同文本块中抽取的%s信息，它们可能描述的是同一个%s，也可能是不同的%s。
请根据artifact_code（文物编号）识别相同的%s，并合并它们的信息。

## 合并规则
1. 如果artifact_code相同，则认为是同一个%s，需要合并
2. 合并时，优先保留更详细、更具体的信息
3. 如果某个字段在多个抽取结果中都有值但不一致，请保留最完整的那个
4. 数值类型的字段，如果有冲突，保留更精确的值
5. 如果artifact_code不同，则保持为独立的%s

## 待合并的抽取结果
`+"```json"+`
%s
`+"```"+`

## 输出格式
请输出合并后的%s列表，格式与输入相同。

## 请开始合并
`, label, label, label, label, label, label, label, data, label)
}

// ExpandCodesPrompt asks the LLM to expand a compound artifact code
// into individual codes, returning a bare JSON string list.
func ExpandCodesPrompt(code string) string {
	return fmt.Sprintf(`你是一个专业的考古数据处理助手。请将以下包含范围或列表的文物编号字符串，解析展开为标准的独立文物编号列表。

示例 1:
输入: "M7:63-1~3"
输出: ["M7:63-1", "M7:63-2", "M7:63-3"]

示例 2:
输入: "M7:1、2、5"
输出: ["M7:1", "M7:2", "M7:5"]

示例 3:
输入: "M7:63-1~63-3"
输出: ["M7:63-1", "M7:63-2", "M7:63-3"]

待处理输入: "%s"

请直接返回JSON字符串列表，不要包含Markdown标记（如 %s）或其他解释性文字。
`, code, "```json")
}
