package model

// Postcode 邮编目录，对本服务只读。
type Postcode struct {
	ID   uint   `gorm:"primarykey" json:"id"`
	Code string `gorm:"size:16;uniqueIndex;not null" json:"code"`
}

func (Postcode) TableName() string { return "postcodes" }

// DeliveryAddress 外送地址，仅外送订单写入，且必须先解析出 Postcode。
type DeliveryAddress struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	PostcodeID uint   `gorm:"not null;index" json:"postcode_id"`
	Street     string `gorm:"size:255;not null" json:"street"`
	House      string `gorm:"size:64;not null" json:"house"`
	Stairs     string `gorm:"size:32" json:"stairs"`
	Buzzer     string `gorm:"size:32" json:"buzzer"`
	Door       string `gorm:"size:32" json:"door"`
	Bell       string `gorm:"size:64" json:"bell"`
}

func (DeliveryAddress) TableName() string { return "delivery_addresses" }
