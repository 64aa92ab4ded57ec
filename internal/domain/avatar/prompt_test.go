package avatar

import (
	"math/rand"
	"strings"
	"testing"
)

func newTestGenerator() *PromptGenerator {
	return NewPromptGenerator(rand.New(rand.NewSource(1)))
}

func TestGenerateContainsRequiredParts(t *testing.T) {
	g := newTestGenerator()

	prompt := g.Generate("alice", "")
	for _, part := range []string{"生成一个独特的个人头像", "采用", "主色调为", "点缀色为", "不要包含文字"} {
		if !strings.Contains(prompt, part) {
			t.Fatalf("prompt missing %q: %s", part, prompt)
		}
	}
}

func TestGeneratePrefersNickname(t *testing.T) {
	g := newTestGenerator()

	// 昵称超过5个字符时应提取"丰富细节"特征
	prompt := g.Generate("ab", "长长的昵称啊")
	if !strings.Contains(prompt, "丰富细节") {
		t.Fatalf("expected nickname-derived feature, got %s", prompt)
	}
	if strings.Contains(prompt, "简约风格") {
		t.Fatalf("username feature leaked despite nickname: %s", prompt)
	}
}

func TestGenerateNameFeatures(t *testing.T) {
	g := newTestGenerator()

	cases := []struct {
		name    string
		feature string
	}{
		{"user42", "科技感设计"},
		{"ab", "简约风格"},
		{"verylongusername", "丰富细节"},
		{"Alice", "专业感"},
		{"a_b", "创意元素"},
	}
	for _, tc := range cases {
		prompt := g.Generate(tc.name, "")
		if !strings.Contains(prompt, tc.feature) {
			t.Fatalf("name %q: expected feature %q in %s", tc.name, tc.feature, prompt)
		}
	}
}

func TestGenerateAccentDiffersFromMain(t *testing.T) {
	g := newTestGenerator()

	for i := 0; i < 50; i++ {
		prompt := g.Generate("alice", "")
		main := extractBetween(prompt, "主色调为", "，")
		accent := extractBetween(prompt, "点缀色为", "，")
		if main == "" || accent == "" {
			t.Fatalf("colors not found in prompt: %s", prompt)
		}
		if main == accent {
			t.Fatalf("accent color equals main color %q", main)
		}
	}
}

func TestGenerateForNewUserAddsCreativeElement(t *testing.T) {
	g := newTestGenerator()

	prompt := g.GenerateForNewUser("alice", "")
	found := false
	for _, element := range creativeElements {
		if strings.Contains(prompt, element) {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("expected a creative element in %s", prompt)
	}
}

func extractBetween(s, start, end string) string {
	i := strings.Index(s, start)
	if i < 0 {
		return ""
	}
	rest := s[i+len(start):]
	j := strings.Index(rest, end)
	if j < 0 {
		return ""
	}
	return rest[:j]
}
