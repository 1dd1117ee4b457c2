package contract

// ClauseTypes are suggested clause categories. The Clause.Type field is
// not restricted to this list.
var ClauseTypes = []string{
	"Renewal & Termination",
	"Confidentiality & Non-Disclosure",
	"Non-Compete & Exclusivity",
	"Liability & Indemnification",
	"Service-Level Agreements",
	"Payment Terms",
	"Governing Law & Dispute Resolution",
	"Intellectual Property",
}

// ContractTypes are suggested contract categories.
var ContractTypes = []string{
	"Affiliate Agreement",
	"Development",
	"Distributor",
	"Endorsement",
	"Franchise",
	"Hosting",
	"IP",
	"Joint Venture",
	"License Agreement",
	"Maintenance",
	"Manufacturing",
	"Marketing",
	"Non Compete/Solicit",
	"Outsourcing",
	"Promotion",
	"Reseller",
	"Service",
	"Sponsorship",
	"Strategic Alliance",
	"Supply",
	"Transportation",
}
