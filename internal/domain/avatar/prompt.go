// Package avatar generates AI avatars for users: a prompt built from the
// user's name, an image synthesis call and upload to object storage.
package avatar

import (
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"
)

var avatarStyles = []string{
	"写实风格", "卡通风格", "动漫风格", "像素艺术", "水彩画风格",
	"油画风格", "插画风格", "极简主义", "几何风格", "赛博朋克",
}

var backgroundTypes = []string{
	"纯色背景", "渐变背景", "抽象背景", "自然背景", "宇宙背景",
	"城市背景", "模糊背景", "几何图案背景", "无背景（透明）",
}

var colors = []string{
	"蓝色", "红色", "绿色", "黄色", "紫色", "橙色",
	"粉色", "青色", "金色", "银色", "棕色", "黑色", "白色",
}

var creativeElements = []string{
	"具有未来感的设计", "包含抽象几何元素", "带有轻微的光晕效果",
	"具有精致的纹理细节", "柔和的光影效果", "明亮鲜艳的色彩",
	"干净清晰的轮廓", "富有想象力的构图", "优雅的色彩过渡",
	"宏观特写视角", "梦幻氛围", "微妙的纹理层次",
}

var (
	digitRe   = regexp.MustCompile(`\d`)
	upperRe   = regexp.MustCompile(`[A-Z]`)
	specialRe = regexp.MustCompile(`[^a-zA-Z0-9\x{4e00}-\x{9fa5}]`)
)

// PromptGenerator builds image prompts from a user's name. The rand
// source is injectable so tests are deterministic.
type PromptGenerator struct {
	rng *rand.Rand
}

func NewPromptGenerator(rng *rand.Rand) *PromptGenerator {
	return &PromptGenerator{rng: rng}
}

// Generate builds an avatar prompt for the user. Nickname wins over
// username when present.
func (g *PromptGenerator) Generate(username, nickname string) string {
	name := strings.TrimSpace(nickname)
	if name == "" {
		name = username
	}

	style := avatarStyles[g.rng.Intn(len(avatarStyles))]
	background := backgroundTypes[g.rng.Intn(len(backgroundTypes))]
	mainColor := colors[g.rng.Intn(len(colors))]
	accentColor := g.complementaryColor(mainColor)

	var b strings.Builder
	b.WriteString("生成一个独特的个人头像，")
	if features := extractFeatures(name); len(features) > 0 {
		b.WriteString(strings.Join(features, "，"))
		b.WriteString("，")
	}
	b.WriteString("采用" + style + "，")
	b.WriteString("主色调为" + mainColor + "，")
	b.WriteString("点缀色为" + accentColor + "，")
	b.WriteString("使用" + background + "，")
	b.WriteString("画面干净整洁，细节丰富，适合作为个人头像，不要包含文字")
	return b.String()
}

// GenerateForNewUser adds one extra creative element on top of the base
// prompt; used for the avatar generated at registration.
func (g *PromptGenerator) GenerateForNewUser(username, nickname string) string {
	element := creativeElements[g.rng.Intn(len(creativeElements))]
	return g.Generate(username, nickname) + "，" + element
}

// extractFeatures derives prompt fragments from the name: digits hint a
// tech preference, length drives detail level, case and special
// characters add formality and creativity.
func extractFeatures(name string) []string {
	var features []string
	if digitRe.MatchString(name) {
		features = append(features, "科技感设计")
	}
	if utf8.RuneCountInString(name) <= 5 {
		features = append(features, "简约风格")
	} else {
		features = append(features, "丰富细节")
	}
	if upperRe.MatchString(name) {
		features = append(features, "专业感")
	}
	if specialRe.MatchString(name) {
		features = append(features, "创意元素")
	}
	return features
}

func (g *PromptGenerator) complementaryColor(color string) string {
	filtered := make([]string, 0, len(colors)-1)
	for _, c := range colors {
		if c != color {
			filtered = append(filtered, c)
		}
	}
	return filtered[g.rng.Intn(len(filtered))]
}
