package packing

import "tripsync/model"

// DefaultCategory is the category of every seeded item.
const DefaultCategory = "行李清單"

type seedItem struct {
	name string
	note string
}

var seedItems = []seedItem{
	{"晶片護照", ""},
	{"護照影本", ""},
	{"2吋大頭照*2", ""},
	{"身分證、健保卡", ""},
	{"機票/保險單", ""},
	{"網卡 / eSIM", ""},
	{"日幣/台幣", ""},
	{"交通卡", ""},
	{"信用卡", ""},
	{"手機、充電線", ""},
	{"購物袋", ""},
	{"行李秤", ""},
	{"底片相機、底片", "所有底片要放手提！"},
	{"腳架", ""},
	{"御朱印帳", ""},
	{"滑雪用品", "手套、雪襪、頭套、防摔褲"},
	{"耳機", ""},
	{"氣泡紙", "買酒用"},
	{"相機、相機電池", "所有電池要放手提！"},
	{"眼鏡", ""},
	{"隱形眼鏡", ""},
	{"化妝包", ""},
	{"太陽眼鏡", ""},
	{"小保溫瓶", ""},
	{"洗漱用品", ""},
	{"保養品", ""},
	{"牙刷牙膏", ""},
	{"雨傘", ""},
	{"常備藥", ""},
	{"保冷袋", ""},
	{"濕紙巾、小包衛生紙", ""},
	{"防曬乳", ""},
	{"行動電源 (wH)", "不可託運。必須隨身攜帶。"},
	{"洗衣袋", ""},
	{"吹風機", ""},
	{"電熱水壺", ""},
	{"暖暖包", ""},
	{"雪球夾", ""},
}

// Seed builds the built-in list with an unchecked entry for every key.
func Seed(memberKeys []string) []model.PackingItem {
	items := make([]model.PackingItem, 0, len(seedItems))
	for i, s := range seedItems {
		items = append(items, model.PackingItem{
			ID:       int64(i + 1),
			Name:     s.name,
			Note:     s.note,
			Category: DefaultCategory,
			CheckMap: uncheckedMap(memberKeys),
		})
	}
	return items
}

func uncheckedMap(keys []string) map[string]bool {
	m := make(map[string]bool, len(keys))
	for _, k := range keys {
		m[k] = false
	}
	return m
}
