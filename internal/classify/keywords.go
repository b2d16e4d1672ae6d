// Package classify labels inbound messages with scam-indicator scores,
// intent categories, and raw entity matches.
package classify

// Keyword categories with per-keyword confidence weights. Matching is
// case-insensitive substring with a bonus for whole-word hits.

// categoryUrgency covers time-pressure phrasing.
var categoryUrgency = map[string]float64{
	"urgent": 0.7, "immediately": 0.8, "right now": 0.8, "asap": 0.7,
	"within 24 hours": 0.8, "expires today": 0.85, "last chance": 0.8,
	"final notice": 0.85, "act now": 0.8, "hurry": 0.7, "deadline": 0.7,
	"limited time": 0.75, "last warning": 0.85, "today only": 0.75,
	"before midnight": 0.8, "time sensitive": 0.75, "don't delay": 0.75,
}

// categoryAuthority covers impersonation of official entities.
var categoryAuthority = map[string]float64{
	"bank manager": 0.75, "bank officer": 0.75, "reserve bank": 0.85,
	"government": 0.7, "police": 0.75, "cyber cell": 0.8, "cyber crime": 0.8,
	"income tax": 0.8, "tax department": 0.8, "customs": 0.75,
	"federal agent": 0.85, "enforcement": 0.8, "court": 0.75,
	"arrest warrant": 0.9, "warrant": 0.85, "legal action": 0.8,
	"case registered": 0.8, "ministry": 0.7, "customer care": 0.65,
	"technical support": 0.6, "helpdesk": 0.6, "official notice": 0.7,
	"irs": 0.85, "social security": 0.8,
}

// categoryReward covers prize and lottery bait.
var categoryReward = map[string]float64{
	"congratulations": 0.8, "winner": 0.85, "prize": 0.8, "lottery": 0.9,
	"lucky draw": 0.9, "jackpot": 0.9, "cash prize": 0.9, "reward": 0.7,
	"selected": 0.7, "claim your": 0.8, "redeem": 0.7, "gift card": 0.7,
	"voucher": 0.65, "bonus": 0.65, "you have won": 0.9, "free iphone": 0.8,
}

// categoryThreat covers fear tactics.
var categoryThreat = map[string]float64{
	"blocked": 0.75, "suspended": 0.8, "frozen": 0.8, "deactivated": 0.75,
	"compromised": 0.8, "hacked": 0.8, "unauthorized": 0.75,
	"suspicious activity": 0.8, "fraud detected": 0.85, "illegal": 0.8,
	"arrest": 0.85, "jail": 0.85, "penalty": 0.75, "fine": 0.7,
	"money laundering": 0.9, "court summons": 0.9, "seize": 0.8,
	"imprisonment": 0.85, "lawsuit": 0.8,
}

// categoryPayment covers payment-request phrasing.
var categoryPayment = map[string]float64{
	"transfer": 0.6, "wire": 0.7, "send money": 0.8, "pay now": 0.8,
	"payment": 0.6, "processing fee": 0.85, "registration fee": 0.85,
	"deposit": 0.6, "gift cards": 0.8, "bitcoin": 0.75, "crypto": 0.7,
	"western union": 0.85, "moneygram": 0.85, "refundable": 0.7,
	"small fee": 0.8, "advance fee": 0.85, "upi": 0.65, "wallet": 0.55,
}

// categoryInfoRequest covers credential and PII harvesting.
var categoryInfoRequest = map[string]float64{
	"verify your": 0.75, "confirm your": 0.7, "update your": 0.7,
	"otp": 0.85, "one time password": 0.85, "cvv": 0.9, "pin": 0.7,
	"password": 0.7, "card number": 0.8, "account number": 0.7,
	"social security number": 0.85, "date of birth": 0.7, "kyc": 0.75,
	"login": 0.6, "click the link": 0.75, "click here": 0.7,
}

// categoryJob covers job-offer bait.
var categoryJob = map[string]float64{
	"work from home": 0.75, "part time job": 0.75, "earn daily": 0.8,
	"hiring": 0.55, "job offer": 0.65, "no experience": 0.7,
	"easy income": 0.8, "salary": 0.5, "per day earning": 0.8,
}

// categoryInvestment covers investment bait.
var categoryInvestment = map[string]float64{
	"investment": 0.65, "guaranteed returns": 0.9, "double your money": 0.9,
	"triple": 0.75, "profit": 0.55, "trading": 0.6, "stock tips": 0.75,
	"no risk": 0.8, "100% returns": 0.9, "assured returns": 0.85,
}

// categoryRomance covers romance bait.
var categoryRomance = map[string]float64{
	"my love": 0.7, "soulmate": 0.75, "lonely": 0.55, "destiny": 0.6,
	"stuck abroad": 0.8, "customs fee": 0.8, "visa fee": 0.8,
}

// categoryDelivery covers parcel and delivery bait.
var categoryDelivery = map[string]float64{
	"package": 0.55, "parcel": 0.6, "customs clearance": 0.8,
	"delivery fee": 0.8, "shipment held": 0.8, "redelivery": 0.75,
	"tracking number": 0.55,
}

// allCategories maps category name to keyword table. Category names double
// as tactic-tag roots and feed the intent and scam-type rules.
var allCategories = map[string]map[string]float64{
	"urgency":      categoryUrgency,
	"authority":    categoryAuthority,
	"reward":       categoryReward,
	"threat":       categoryThreat,
	"payment":      categoryPayment,
	"info_request": categoryInfoRequest,
	"job":          categoryJob,
	"investment":   categoryInvestment,
	"romance":      categoryRomance,
	"delivery":     categoryDelivery,
}

// categoryTactics maps a matched category to the social-engineering tactic tag
// recorded as intelligence.
var categoryTactics = map[string]string{
	"urgency":      "time_pressure",
	"authority":    "authority_impersonation",
	"reward":       "lottery_bait",
	"threat":       "fear_tactics",
	"payment":      "fee_demand",
	"info_request": "data_harvesting",
	"job":          "job_bait",
	"investment":   "investment_bait",
	"romance":      "romance_bait",
	"delivery":     "delivery_bait",
}

// highRiskCombinations are category pairs whose joint presence is a strong
// scam signal; the bonus is added on top of individual category scores.
var highRiskCombinations = []struct {
	categories []string
	bonus      float64
}{
	{[]string{"urgency", "payment"}, 0.3},
	{[]string{"authority", "threat"}, 0.35},
	{[]string{"reward", "payment"}, 0.35},
	{[]string{"threat", "payment"}, 0.4},
	{[]string{"info_request", "urgency"}, 0.3},
	{[]string{"authority", "info_request"}, 0.25},
	{[]string{"job", "payment"}, 0.35},
	{[]string{"investment", "urgency"}, 0.3},
}
