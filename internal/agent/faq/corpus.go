package faq

// DefaultCorpus returns the built-in FAQ entries in load order.
func DefaultCorpus() []Entry {
	return []Entry{
		{
			ID:       "faq-001",
			Category: "technology",
			Question: "What is two-phase immersion cooling?",
			Answer: "Two-phase immersion cooling submerges servers in an engineered dielectric fluid that boils " +
				"at a low temperature. The vapor rises, condenses on a coil above the bath and drips back, " +
				"so heat leaves the tank without pumps. It is the most efficient way to cool high-density racks.",
			Keywords:       []string{"two phase", "two-phase cooling", "boiling", "dielectric", "vapor"},
			RelatedContent: []string{"course-immersion-101", "article-two-phase-vs-single-phase"},
		},
		{
			ID:       "faq-002",
			Category: "technology",
			Question: "How does single-phase immersion cooling work?",
			Answer: "In single-phase systems the fluid stays liquid. A pump circulates it through the tank " +
				"and out to a heat exchanger, which moves the heat to a facility water loop.",
			Keywords:       []string{"single phase", "single-phase", "pump", "heat exchanger"},
			RelatedContent: []string{"course-immersion-101"},
		},
		{
			ID:       "faq-003",
			Category: "technology",
			Question: "Which fluids are safe to use with servers?",
			Answer: "Only dielectric fluids rated for electronics should be used. Synthetic hydrocarbons and " +
				"engineered fluorochemicals are the common choices; check the fluid datasheet for material compatibility.",
			Keywords:       []string{"fluid", "coolant", "oil", "fluorochemical", "safe"},
			RelatedContent: []string{"guide-fluid-selection"},
		},
		{
			ID:       "faq-004",
			Category: "courses",
			Question: "Which course should a beginner start with?",
			Answer: "Start with Immersion Cooling 101. It covers heat transfer basics, tank design and safety, " +
				"and needs no prior data center experience.",
			Keywords:       []string{"beginner", "start", "first course", "new to"},
			RelatedContent: []string{"course-immersion-101"},
		},
		{
			ID:       "faq-005",
			Category: "orders",
			Question: "How long does shipping take?",
			Answer: "Standard orders leave our warehouse within two business days. Delivery usually takes " +
				"three to five business days after dispatch, and a tracking link is emailed once the parcel is on its way.",
			Keywords: []string{"shipping", "delivery", "ship", "tracking"},
		},
		{
			ID:       "faq-006",
			Category: "orders",
			Question: "Can I return a product?",
			Answer: "Unused products can be returned within 30 days of delivery. Open a return request from " +
				"your order history and we will email a prepaid label.",
			Keywords: []string{"return", "refund", "exchange", "send back"},
		},
		{
			ID:       "faq-007",
			Category: "payments",
			Question: "Which payment methods do you accept?",
			Answer: "We accept major credit and debit cards, bank transfer for business accounts, and " +
				"purchase orders from approved institutions.",
			Keywords: []string{"payment", "pay", "credit card", "invoice", "purchase order"},
		},
		{
			ID:       "faq-008",
			Category: "account",
			Question: "How do I reset my password?",
			Answer: "Choose Forgot password on the sign-in page and follow the link we email you. " +
				"The link expires after one hour.",
			Keywords: []string{"password", "reset", "sign in", "login", "locked out"},
		},
		{
			ID:       "faq-009",
			Category: "courses",
			Question: "Do courses include a certificate?",
			Answer: "Every paid course ends with an assessment. Pass it and a verifiable certificate is added " +
				"to your profile, ready to share.",
			Keywords:       []string{"certificate", "certification", "assessment", "exam"},
			RelatedContent: []string{"page-certification"},
		},
		{
			ID:       "faq-010",
			Category: "courses",
			Question: "Can my team enroll together?",
			Answer: "Team plans cover five or more learners with a shared dashboard, progress reports and " +
				"volume pricing. Contact sales for a quote.",
			Keywords: []string{"team", "group", "company", "enroll", "bulk"},
		},
	}
}
