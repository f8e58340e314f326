package aws

import (
	"fmt"
	"strings"
)

// RoleARN is a parsed iam role arn: arn:<partition>:iam::<account>:role/<path/><name>.
type RoleARN struct {
	Partition string
	AccountID string
	// Path is empty or ends with a slash
	Path string
	Name string
}

// ParseRoleARN rejects anything that does not designate an assumable iam role.
func ParseRoleARN(s string) (RoleARN, error) {
	parts := strings.SplitN(s, ":", 6)
	if len(parts) != 6 || parts[0] != "arn" || parts[1] == "" {
		return RoleARN{}, fmt.Errorf("invalid arn format: %s", s)
	}
	if parts[2] != "iam" || !strings.HasPrefix(parts[5], "role/") {
		return RoleARN{}, fmt.Errorf("%s is not an iam role", s)
	}
	if len(parts[4]) != 12 || strings.Trim(parts[4], "0123456789") != "" {
		return RoleARN{}, fmt.Errorf("invalid account id in role arn: %s", s)
	}

	role := RoleARN{Partition: parts[1], AccountID: parts[4]}
	resource := strings.TrimPrefix(parts[5], "role/")
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		role.Path, role.Name = resource[:i+1], resource[i+1:]
	} else {
		role.Name = resource
	}
	if role.Name == "" {
		return RoleARN{}, fmt.Errorf("missing role name in arn: %s", s)
	}
	return role, nil
}

func (r RoleARN) String() string {
	return fmt.Sprintf("arn:%s:iam::%s:role/%s%s", r.Partition, r.AccountID, r.Path, r.Name)
}
