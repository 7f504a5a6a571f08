// Package blocks implements the on-chain block/action taxonomy: a tagged
// sum of every administrative action, one variant per nature code, with
// byte-exact wire framing.
//
// Shape grounded on a WebSocketMessage-style envelope (dropped from this
// tree once its shape was absorbed here): a typed envelope carrying a
// nature/type tag plus a type-specific payload, generalized from JSON
// tags to the binary preamble below.
package blocks

// Nature is the wire tag selecting a block's payload layout.
type Nature uint64

const (
	NatureTrustchainCreation            Nature = 1
	NatureDeviceCreationV1              Nature = 2
	NatureDeviceRevocationV1            Nature = 12
	NatureUserGroupCreationV1           Nature = 10
	NatureUserGroupAdditionV1           Nature = 13
	NatureDeviceRevocationV2            Nature = 14
	NatureUserGroupCreationV2           Nature = 15
	NatureUserGroupAdditionV2           Nature = 16
	NatureUserGroupCreationV3           Nature = 17
	NatureUserGroupAdditionV3           Nature = 18
	NatureDeviceCreationV2              Nature = 6
	NatureDeviceCreationV3              Nature = 7
	NatureKeyPublishToDevice            Nature = 8
	NatureKeyPublishToUser              Nature = 9
	NatureKeyPublishToUserGroup         Nature = 11
	NatureProvisionalIdentityClaim      Nature = 19
	NatureKeyPublishToProvisionalUser   Nature = 20
)

func (n Nature) String() string {
	switch n {
	case NatureTrustchainCreation:
		return "TrustchainCreation"
	case NatureDeviceCreationV1:
		return "DeviceCreationV1"
	case NatureDeviceCreationV2:
		return "DeviceCreationV2"
	case NatureDeviceCreationV3:
		return "DeviceCreationV3"
	case NatureKeyPublishToDevice:
		return "KeyPublishToDevice"
	case NatureKeyPublishToUser:
		return "KeyPublishToUser"
	case NatureKeyPublishToUserGroup:
		return "KeyPublishToUserGroup"
	case NatureKeyPublishToProvisionalUser:
		return "KeyPublishToProvisionalUser"
	case NatureDeviceRevocationV1:
		return "DeviceRevocationV1"
	case NatureDeviceRevocationV2:
		return "DeviceRevocationV2"
	case NatureUserGroupCreationV1:
		return "UserGroupCreationV1"
	case NatureUserGroupCreationV2:
		return "UserGroupCreationV2"
	case NatureUserGroupCreationV3:
		return "UserGroupCreationV3"
	case NatureUserGroupAdditionV1:
		return "UserGroupAdditionV1"
	case NatureUserGroupAdditionV2:
		return "UserGroupAdditionV2"
	case NatureUserGroupAdditionV3:
		return "UserGroupAdditionV3"
	case NatureProvisionalIdentityClaim:
		return "ProvisionalIdentityClaim"
	default:
		return "Unknown"
	}
}

// IsDeviceCreation reports whether n is any DeviceCreation variant.
func (n Nature) IsDeviceCreation() bool {
	switch n {
	case NatureDeviceCreationV1, NatureDeviceCreationV2, NatureDeviceCreationV3:
		return true
	}
	return false
}

func (n Nature) IsUserGroupCreation() bool {
	switch n {
	case NatureUserGroupCreationV1, NatureUserGroupCreationV2, NatureUserGroupCreationV3:
		return true
	}
	return false
}

func (n Nature) IsUserGroupAddition() bool {
	switch n {
	case NatureUserGroupAdditionV1, NatureUserGroupAdditionV2, NatureUserGroupAdditionV3:
		return true
	}
	return false
}

func (n Nature) IsDeviceRevocation() bool {
	switch n {
	case NatureDeviceRevocationV1, NatureDeviceRevocationV2:
		return true
	}
	return false
}
