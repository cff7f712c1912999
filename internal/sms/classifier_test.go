package sms

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jask/smsledger/internal/rules"
)

func newTestClassifier(t *testing.T, p Params) *Classifier {
	t.Helper()
	set, err := rules.Builtin("in")
	require.NoError(t, err)
	c, err := New(set, p)
	require.NoError(t, err)
	return c
}

var ts = time.Date(2024, 1, 12, 10, 30, 0, 0, time.UTC)

func msg(sender, body string) RawMessage {
	return RawMessage{Sender: sender, Body: body, Timestamp: ts}
}

func TestClassifyUPIDebit(t *testing.T) {
	c := newTestClassifier(t, DefaultParams())

	res := c.Classify(msg("HDFCBK", "Rs.450.00 debited from A/c for UPI/SWIGGY/Ref1234 on 12-01-24"))
	require.True(t, res.Accepted(), "reason %s", res.Reason)
	ex := res.Extraction
	require.True(t, decimal.RequireFromString("450.00").Equal(ex.Amount))
	require.Contains(t, ex.MerchantRaw, "SWIGGY")
	require.Equal(t, "HDFC Bank", ex.BankName)
	require.True(t, ex.IsDebit)
	require.Equal(t, "1234", ex.ReferenceNumber)
	require.GreaterOrEqual(t, ex.Confidence, 0.65)
	require.Equal(t, 0.9, ex.Confidence)
}

func TestClassifyRejections(t *testing.T) {
	c := newTestClassifier(t, DefaultParams())

	cases := []struct {
		name   string
		sender string
		body   string
		want   Reason
	}{
		{"unknown sender", "JX-FRIEND", "Rs.450.00 debited from A/c Ref 1234", UnknownSender},
		{"empty sender", "", "Rs.450.00 debited from A/c Ref 1234", UnknownSender},
		// no reference keyword, so the first gate fires before the promo filter
		{"marketing without reference", "HDFCBK", "Get 50% off on your next order! Click http://x", NoReferenceNumber},
		{"marketing with reference", "HDFCBK", "Get 50% cashback on UPI payments! Click http://x T&C apply. Ref 9981", Promotional},
		{"otp without reference", "HDFCBK", "123456 is your OTP. Do not share.", NoReferenceNumber},
		{"otp with reference", "HDFCBK", "OTP 123456 for txn of Rs.500 at AMAZON to be debited from your card. Do not share.", OtpMessage},
		{"no intent keyword", "HDFCBK", "Your statement Ref 5541 is ready", NoTransactionKeyword},
		{"emi", "ICICIB", "EMI reminder: Rs.2,500 will be deducted from A/c XX12 on 05-02. Ref EMI778 debited", EmiNotification},
		{"no amount", "HDFCBK", "Your a/c XX1234 debited via UPI Ref 5678", NoValidAmount},
		{"amount below minimum", "HDFCBK", "Rs.0.50 debited from A/c via UPI Ref 5678", NoValidAmount},
		{"amount overflows paise", "HDFCBK", "Rs.99999999999999999999 debited from A/c via UPI Ref 5678", NoValidAmount},
		{"low confidence", "HDFCBK", "Amount 500 spent at CAFE COFFEE DAY Ref 12345", LowConfidence},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := c.Classify(msg(tc.sender, tc.body))
			require.False(t, res.Accepted())
			require.Nil(t, res.Extraction)
			require.Equal(t, tc.want, res.Reason)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := newTestClassifier(t, DefaultParams())
	m := msg("VM-HDFCBK", "Rs 1,499.00 spent on HDFC Card XX1234 at AMAZON INDIA on 2024-01-12. Avl balance Rs 10,000 Ref 88123")
	first := c.Classify(m)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, c.Classify(m))
	}
	require.True(t, first.Accepted())
	require.Equal(t, "AMAZON INDIA", first.Extraction.MerchantRaw)
	require.True(t, decimal.NewFromInt(1499).Equal(first.Extraction.Amount))
	require.Equal(t, 0.8, first.Extraction.Confidence)
}

func TestAmountPatterns(t *testing.T) {
	c := newTestClassifier(t, DefaultParams())
	cases := []struct {
		body string
		want string
		high bool
	}{
		{"INR 1,200.50 debited", "1200.50", true},
		{"500 INR debited", "500", true},
		{"₹ 75 debited", "75", true},
		{"Amt: 320.25 debited", "320.25", false},
		{"Account debited by 42", "42", false},
		{"a sum of 990 has been debited", "990", false},
		// the sub-unit prefix match is skipped in favour of a later valid one
		{"Rs.0.40 fee and Rs.120 debited", "120", true},
	}
	for _, tc := range cases {
		t.Run(tc.body, func(t *testing.T) {
			got, high, ok := c.extractAmount(tc.body)
			require.True(t, ok)
			require.True(t, decimal.RequireFromString(tc.want).Equal(got), "got %s", got)
			require.Equal(t, tc.high, high)
		})
	}
}

func TestMerchantExtraction(t *testing.T) {
	c := newTestClassifier(t, DefaultParams())
	cases := []struct {
		name string
		body string
		want string
	}{
		{"at", "Rs.649 spent at STARBUCKS COFFEE on 12-01", "STARBUCKS COFFEE"},
		{"at stops at order code", "Rs.649 spent at AMAZON*AB12CD Ref 991", "AMAZON"},
		{"to", "Rs.200 sent to RAHUL KUMAR via UPI Ref 123", "RAHUL KUMAR"},
		{"to skips stopword lead", "Rs.200 transferred to your account. Paid for NETFLIX Ref 12", "NETFLIX"},
		{"upi with numeric segment", "Rs.99 debited UPI/401234/ZOMATO LTD/Ref 55", "ZOMATO"},
		{"order code", "Rs.99 debited AMZN*X1Y2Z3 Ref 55", "AMZN"},
		{"location", "Rs.300 debited via POS Ref 77 DMART AVENUE-MUMBAI", "DMART AVENUE"},
		{"brand fallback", "Rs.300 debited, ola ride Ref 77", "OLA"},
		{"capitalized fallback", "Rs.300 debited Ref 77 Lakshmi Stores", "Lakshmi Stores"},
		{"unknown", "Rs.300 debited Ref 77", UnknownMerchant},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, c.extractMerchant(tc.body))
		})
	}
}

func TestBankName(t *testing.T) {
	c := newTestClassifier(t, DefaultParams())
	require.Equal(t, "SBI Card", c.BankName("AD-SBICRD", ""))
	require.Equal(t, "State Bank of India", c.BankName("AD-SBIINB", ""))
	require.Equal(t, "ICICI Bank", c.BankName("icicib", ""))
	require.Equal(t, "Canara Bank", c.BankName("XY-CNRB", "your canara a/c"))
	require.Equal(t, "XY-LOCAL", c.BankName(" XY-LOCAL ", "nothing here"))
}

func TestDirection(t *testing.T) {
	body := "Rs.500 debited from A/c XX1 and refund received Ref 9"
	debitWins := newTestClassifier(t, DefaultParams())
	require.True(t, debitWins.isDebit(body))

	p := DefaultParams()
	p.DebitWinsTies = false
	creditWins := newTestClassifier(t, p)
	require.False(t, creditWins.isDebit(body))

	require.False(t, debitWins.isDebit("Rs 5,000.00 credited to your A/c XX123 by NEFT Ref N123456"))
	require.True(t, debitWins.isDebit("Rs 50 via UPI Ref 1"))
}

func TestKeywordBoundaries(t *testing.T) {
	k := compileKeywords([]string{"ref", "pos", "t&c"})
	require.True(t, k.match("UPI/SWIGGY/Ref1234"))
	require.True(t, k.match("POS txn"))
	require.True(t, k.match("T&C apply"))
	require.False(t, k.match("amount deposited"))
	require.False(t, keywordSet{}.match("anything"))
}

func TestAcceptanceThresholdConfigurable(t *testing.T) {
	p := DefaultParams()
	p.AcceptanceThreshold = 0.5
	c := newTestClassifier(t, p)
	res := c.Classify(msg("HDFCBK", "Amount 500 spent at CAFE COFFEE DAY Ref 12345"))
	require.True(t, res.Accepted())
	require.Equal(t, 0.5, res.Extraction.Confidence)
	require.Equal(t, "CAFE COFFEE DAY", res.Extraction.MerchantRaw)
}
