package connectors

import "testing"

func TestDetectInvoiceEmail(t *testing.T) {
	cases := []struct {
		name        string
		subject     string
		text        string
		html        string
		attachments []string
		want        bool
	}{
		{
			name:        "subject and pdf attachment",
			subject:     "Счет на оплату № 105",
			attachments: []string{"invoice_105.pdf"},
			want:        true,
		},
		{
			name:    "body with amounts",
			subject: "Re: запрос",
			text:    "Направляем счет. Итого 118 000,00 руб. НДС 19 666,67 руб.",
			want:    true,
		},
		{
			name: "html table with keywords",
			html: "<table><tr><td>Наименование</td><td>Сумма</td></tr></table> итого к оплате",
			want: true,
		},
		{
			name:    "newsletter",
			subject: "Новости компании за март",
			text:    "Подписывайтесь на наши обновления",
			want:    false,
		},
		{
			name:        "image attachment only",
			subject:     "Фото со склада",
			attachments: []string{"photo.jpg"},
			want:        false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectInvoiceEmail(tc.subject, tc.text, tc.html, tc.attachments)
			if got.IsInvoice != tc.want {
				t.Fatalf("IsInvoice = %v (score %.2f), want %v", got.IsInvoice, got.Score, tc.want)
			}
		})
	}
}

func TestCountMoneyPatterns(t *testing.T) {
	if got := countMoneyPatterns("итого 118 000,00 руб. ндс 19 666,67 руб."); got < 2 {
		t.Fatalf("money patterns = %d, want >= 2", got)
	}
	if got := countMoneyPatterns("рубрика без сумм"); got != 0 {
		t.Fatalf("money patterns = %d, want 0", got)
	}
}
