package domain

var Tables = []interface{}{
	// System
	&SysConfig{},
	// DNS quality engine
	&DnsIPHistory{},
	&DnsRoundResult{},
	&DnsPublishedState{},
}
