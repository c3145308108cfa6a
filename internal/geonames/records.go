// 包 geonames：GeoNames 导出仓库（download.geonames.org/export/dump）的同步客户端，负责全量快照与每日增量的拉取、解压与解析
package geonames

import "time"

// PlaceRecord：一条地名记录（全量快照与 modifications 增量共用）
// 背景：字段顺序与上游 cities500.txt 的制表符列一致；解析后只读，不携带额外身份信息。
type PlaceRecord struct {
	ID             int64
	Name           string
	ASCIIName      string
	AlternateNames []string
	Latitude       float64
	Longitude      float64
	FeatureClass   string
	FeatureCode    string
	CountryCode    string
	CC2            []string
	Admin1Code     string
	Admin2Code     string
	Admin3Code     string
	Admin4Code     string
	Population     int64
	Elevation      int
	DEM            int
	Timezone       string
	ModifiedAt     time.Time
}

// DeletionRecord：上游自参考日以来删除的地名
type DeletionRecord struct {
	ID      int64
	Name    string
	Comment string
}
