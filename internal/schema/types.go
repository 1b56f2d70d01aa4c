package schema

// Internal entity types
const (
	EntityTypeSettings   = "Settings"
	EntityTypeGroup      = "Group"
	EntityTypeUser       = "User"
	EntityTypeRole       = "Role"
	EntityTypeCapability = "Capability"
	EntityTypeConnector  = "Connector"
	EntityTypeWorkspace  = "Workspace"
	EntityTypeStatus     = "Status"
	EntityTypeRule       = "Rule"
	EntityTypeSession    = "Session"
)

// RelationshipTypeCore is the generic type of STIX core relationships
const RelationshipTypeCore = "stix-core-relationship"

var stixDomainObjects = toSet(
	"Attack-Pattern", "Campaign", "Note", "Observed-Data", "Opinion", "Report", "Grouping",
	"Course-Of-Action", "Individual", "Organization", "Sector", "System", "Indicator",
	"Infrastructure", "Intrusion-Set", "City", "Country", "Region", "Position",
	"Administrative-Area", "Malware", "Malware-Analysis", "Threat-Actor-Group",
	"Threat-Actor-Individual", "Tool", "Vulnerability", "Incident", "Channel", "Event",
	"Narrative", "Language", "Data-Component", "Data-Source", "Case-Incident", "Case-Rfi",
	"Case-Rft", "Feedback", "Task",
)

var stixCyberObservables = toSet(
	"Artifact", "Autonomous-System", "Directory", "Domain-Name", "Email-Addr",
	"Email-Message", "Email-Mime-Part-Type", "StixFile", "X509-Certificate", "IPv4-Addr",
	"IPv6-Addr", "Mac-Addr", "Mutex", "Network-Traffic", "Process", "Software", "Url",
	"User-Account", "Windows-Registry-Key", "Windows-Registry-Value-Type",
	"Cryptographic-Key", "Cryptocurrency-Wallet", "Hostname", "Text", "User-Agent",
	"Bank-Account", "Credential", "Tracking-Number", "Phone-Number", "Payment-Card",
	"Media-Content", "Persona",
)

var stixCoreRelationships = toSet(
	RelationshipTypeCore,
	"delivers", "targets", "uses", "attributed-to", "compromises", "originates-from",
	"investigates", "mitigates", "located-at", "indicates", "based-on",
	"communicates-with", "consists-of", "controls", "has", "hosts", "owns", "authored-by",
	"beacons-to", "exfiltrates-to", "downloads", "drops", "exploits", "variant-of",
	"characterizes", "analysis-of", "static-analysis-of", "dynamic-analysis-of",
	"impersonates", "remediates", "related-to", "derived-from", "part-of", "cooperates-with",
	"participates-in", "publishes", "employed-by", "resides-in", "citizen-of",
	"national-of", "known-as", "reports-to", "supports", "belongs-to", "resolves-to",
	"detects", "should-cover",
)

var internalObjects = toSet(
	EntityTypeSettings, EntityTypeGroup, EntityTypeUser, EntityTypeRole, EntityTypeCapability,
	EntityTypeConnector, EntityTypeWorkspace, EntityTypeStatus, EntityTypeRule,
	EntityTypeSession,
)

// internalReadEntities are the internal types whose reads are recorded
var internalReadEntities = toSet(EntityTypeWorkspace)

// IsStixCoreObject reports whether the type is a STIX domain object or cyber observable
func IsStixCoreObject(entityType string) bool {
	_, domain := stixDomainObjects[entityType]
	_, observable := stixCyberObservables[entityType]
	return domain || observable
}

// IsStixCoreRelationship reports whether the type is a STIX core relationship
func IsStixCoreRelationship(entityType string) bool {
	_, ok := stixCoreRelationships[entityType]
	return ok
}

// IsInternalObject reports whether the type is an internal platform object
func IsInternalObject(entityType string) bool {
	_, ok := internalObjects[entityType]
	return ok
}

// IsReadListened reports whether reads of the entity type are recorded as activity
func IsReadListened(entityType string) bool {
	if IsStixCoreObject(entityType) || IsStixCoreRelationship(entityType) {
		return true
	}
	_, whitelisted := internalReadEntities[entityType]
	return IsInternalObject(entityType) && whitelisted
}

func toSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
