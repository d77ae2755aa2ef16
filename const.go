package gatt

// Well-known UUIDs assigned by the Bluetooth SIG.

var (
	gattAttrGAPUUID  = UUID16(0x1800)
	gattAttrGATTUUID = UUID16(0x1801)

	gattAttrPrimaryServiceUUID = UUID16(0x2800)
	gattAttrCharacteristicUUID = UUID16(0x2803)

	gattAttrDeviceNameUUID = UUID16(0x2A00)
	gattAttrAppearanceUUID = UUID16(0x2A01)

	// CCCDUUID is the type of the Client Characteristic Configuration Descriptor.
	CCCDUUID = UUID16(0x2902)

	// UserDescriptionUUID is the type of the Characteristic User Description descriptor.
	UserDescriptionUUID = UUID16(0x2901)
)

// https://developer.bluetooth.org/gatt/characteristics/Pages/CharacteristicViewer.aspx?u=org.bluetooth.characteristic.gap.appearance.xml
var gapCharAppearanceGenericComputer = []byte{0x00, 0x80}

const (
	gattCCCNotifyFlag   = 0x0001
	gattCCCIndicateFlag = 0x0002
)
