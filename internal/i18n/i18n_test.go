package i18n

import "testing"

func TestParseAcceptLanguage(t *testing.T) {
	cases := map[string]string{
		"":                          LocaleEn,
		"zh-CN,zh;q=0.9,en;q=0.8":   LocaleZhCN,
		"en-US,en;q=0.9":            LocaleEn,
		"fr-FR":                     LocaleEn,
		"zh":                        LocaleZhCN,
		"not a language header;;;;": LocaleEn,
	}
	for header, want := range cases {
		if got := ParseAcceptLanguage(header); got != want {
			t.Fatalf("header %q: want %s got %s", header, want, got)
		}
	}
}

func TestTFallsBack(t *testing.T) {
	if got := T(LocaleZhCN, "error.payout_already_pending"); got != "已有处理中的提现申请" {
		t.Fatalf("unexpected zh message: %s", got)
	}
	if got := T("de", "error.bad_request"); got != "Invalid request parameters" {
		t.Fatalf("unknown locale should fall back to en, got %s", got)
	}
	if got := T(LocaleEn, "error.missing_key"); got != "error.missing_key" {
		t.Fatalf("missing key should echo key, got %s", got)
	}
}

func TestEveryKeyHasBothLocales(t *testing.T) {
	for key := range messages[LocaleEn] {
		if _, ok := messages[LocaleZhCN][key]; !ok {
			t.Fatalf("zh-CN missing key %s", key)
		}
	}
	for key := range messages[LocaleZhCN] {
		if _, ok := messages[LocaleEn][key]; !ok {
			t.Fatalf("en missing key %s", key)
		}
	}
}
